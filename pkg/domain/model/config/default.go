package config

import "github.com/secmon-lab/boardsync/pkg/domain/types"

// DefaultStatusDefinitions is the board layout used when no catalog file
// is given
func DefaultStatusDefinitions() []StatusDefinition {
	return []StatusDefinition{
		{Name: "Key Target Demographics"},
		{Name: "Knows Cyberbacker", Required: []RequiredField{
			{Key: "assignee", Label: "Assigned Growthbacker"},
		}},
		{Name: "Lead", Required: []RequiredField{
			{Key: "industry", Label: "Specific Industry"},
			{Key: "company", Label: "Company/Brokerage"},
			{Key: "assignee", Label: "Assigned Growthbacker"},
			{Key: "growthassistant", Label: "Assigned Growthassistant"},
		}},
		{Name: "Invalid Lead"},
		{Name: "Declined"},
		{Name: "Appointment Set", Required: []RequiredField{
			{Key: "appointment_set_date", Label: "Appointment Set Date"},
		}},
		{Name: "Appointment Kept", Required: []RequiredField{
			{Key: "appointment_held_date", Label: "Appointment Held Date"},
		}},
		{Name: "Prime Simulations"},
		{Name: "Agreement Signed", Required: []RequiredField{
			{Key: "signed_date", Label: "Agreement signed date"},
			{Key: "contract_signatory", Label: "Contract Signatory"},
			{Key: "bill_to_name", Label: "Name (Person to bill)"},
			{Key: "hiring_fee_amount", Label: "Hiring Fee Amount"},
			{Key: "pt_ft", Label: "PT/FT"},
			{Key: "kw_segment", Label: "KW/Non-KW/Non-RE"},
			{Key: "endorsed_date", Label: "Endorsed Date"},
			{Key: "one_sheet", Label: "One Sheet"},
			{Key: "contract", Label: "Contract"},
			{Key: "contract_version", Label: "Contract Version"},
			{Key: "referral_type", Label: "Type of Referral"},
		}},
		{Name: "Hiring Fee Paid", Required: []RequiredField{
			{Key: "hiring_fee_paid_date", Label: "Hiring Fee Paid Date"},
			{Key: "hiring_fee_posted_date", Label: "Hiring Fee Posted Date"},
			{Key: "monthly_service_fee", Label: "Monthly Service Fee"},
		}},
		{Name: "On Pause", SubStatuses: []types.Status{"Returned SA", "Awaiting OS"}},
		{Name: "Active", SubStatuses: []types.Status{
			"MAPS Credit", "Trade", "Active but Awaiting Replacement",
			"Active (Winback)", "Winback", "Active (NR - 6months)",
		}},
		{Name: "Awaiting Replacement", SubStatuses: []types.Status{
			"Suspended", "Ghosted", "Pending On Hold", "Pending Cancellation", "On Hold",
		}},
		{Name: "Canceled"},
	}
}
