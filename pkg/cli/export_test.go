package cli

// ParseRecordIDs is exported for testing
var ParseRecordIDs = parseRecordIDs

// ParseSubStatuses is exported for testing
var ParseSubStatuses = parseSubStatuses

// ParseFieldValues is exported for testing
var ParseFieldValues = parseFieldValues

// Renderers are exported for testing
var (
	RenderBoard      = renderBoard
	RenderSearch     = renderSearch
	RenderMoveResult = renderMoveResult
	RenderCatalog    = renderCatalog
	RecordTitle      = recordTitle
)
