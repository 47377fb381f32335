package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/boardsync/pkg/domain/types"
)

func TestParseConnectionState(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.ConnectionState
		wantErr bool
	}{
		{name: "disconnected", input: "disconnected", want: types.ConnectionStateDisconnected},
		{name: "connecting", input: "connecting", want: types.ConnectionStateConnecting},
		{name: "connected", input: "connected", want: types.ConnectionStateConnected},
		{name: "reconnecting", input: "reconnecting", want: types.ConnectionStateReconnecting},
		{name: "failed", input: "failed", want: types.ConnectionStateFailed},
		{name: "unknown", input: "error", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseConnectionState(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestConnectionState_IsActive(t *testing.T) {
	active := map[types.ConnectionState]bool{
		types.ConnectionStateConnecting: true,
		types.ConnectionStateConnected:  true,
	}
	for _, s := range types.AllConnectionStates() {
		gt.Bool(t, s.IsActive() == active[s]).
			Describef("state %s", s).
			True()
	}
}

func TestParseFilterMode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    types.FilterMode
		wantErr bool
	}{
		{name: "empty uses default", input: "", want: types.FilterModeAssigned},
		{name: "unassigned", input: "unassigned", want: types.FilterModeUnassigned},
		{name: "all", input: "all", want: types.FilterModeAll},
		{name: "invalid", input: "mine", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := types.ParseFilterMode(tt.input)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Value(t, got).Equal(tt.want)
		})
	}
}

func TestMoveState_IsTerminal(t *testing.T) {
	gt.Bool(t, types.MoveStateSettled.IsTerminal()).True()
	gt.Bool(t, types.MoveStateFailed.IsTerminal()).True()
	gt.Bool(t, types.MoveStateCancelled.IsTerminal()).True()
	gt.Bool(t, types.MoveStateBlocked.IsTerminal()).False()
	gt.Bool(t, types.MoveStateConfirming.IsTerminal()).False()
}
