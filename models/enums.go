package models

import "errors"

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "Pending"
	DepositStatusInReview  DepositStatus = "InReview"
	DepositStatusCompleted DepositStatus = "Completed"
)

func (s *DepositStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Pending":
		*s = DepositStatusPending
	case "InReview":
		*s = DepositStatusInReview
	case "Completed":
		*s = DepositStatusCompleted
	default:
		return errors.New("invalid deposit status")
	}
	return nil
}

type LineItemStatus string

const (
	LineItemStatusUnmatched        LineItemStatus = "Unmatched"
	LineItemStatusSuggested        LineItemStatus = "Suggested"
	LineItemStatusPartiallyMatched LineItemStatus = "PartiallyMatched"
	LineItemStatusMatched          LineItemStatus = "Matched"
)

type MatchStatus string

const (
	MatchStatusSuggested MatchStatus = "Suggested"
	MatchStatusApplied   MatchStatus = "Applied"
)

type MatchSource string

const (
	MatchSourceManual MatchSource = "Manual"
	MatchSourceAuto   MatchSource = "Auto"
)

type ScheduleStatus string

const (
	ScheduleStatusOpen                ScheduleStatus = "Open"
	ScheduleStatusPartiallyReconciled ScheduleStatus = "PartiallyReconciled"
	ScheduleStatusFullyReconciled     ScheduleStatus = "FullyReconciled"
)

type BillingStatus string

const (
	BillingStatusOpen       BillingStatus = "Open"
	BillingStatusReconciled BillingStatus = "Reconciled"
	BillingStatusInDispute  BillingStatus = "InDispute"
)

type FlexClassification string

const (
	FlexClassificationNone       FlexClassification = "None"
	FlexClassificationOverage    FlexClassification = "Overage"
	FlexClassificationShortfall  FlexClassification = "Shortfall"
	FlexClassificationChargeback FlexClassification = "Chargeback"
	FlexClassificationAdjustment FlexClassification = "Adjustment"
	FlexClassificationProduct    FlexClassification = "FlexProduct"
)

// FlexAction is the decision emitted by the variance resolver.
type FlexAction string

const (
	FlexActionAutoAdjust FlexAction = "auto_adjust"
	FlexActionPrompt     FlexAction = "prompt"
	FlexActionChargeback FlexAction = "chargeback"
)

// FlexResolution is the operator-chosen resolution for a prompted variance.
type FlexResolution string

const (
	FlexResolutionAdjust            FlexResolution = "Adjust"
	FlexResolutionFlexProduct       FlexResolution = "FlexProduct"
	FlexResolutionChargebackApprove FlexResolution = "ChargebackApprove"
)

func (r *FlexResolution) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Adjust":
		*r = FlexResolutionAdjust
	case "FlexProduct":
		*r = FlexResolutionFlexProduct
	case "ChargebackApprove":
		*r = FlexResolutionChargebackApprove
	default:
		return errors.New("invalid flex resolution action")
	}
	return nil
}

type ReviewStatus string

const (
	ReviewStatusOpen     ReviewStatus = "Open"
	ReviewStatusApproved ReviewStatus = "Approved"
)

type BundleMode string

const (
	BundleModeKeepOld       BundleMode = "keep_old"
	BundleModeSoftDeleteOld BundleMode = "soft_delete_old"
)

func (m *BundleMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "keep_old":
		*m = BundleModeKeepOld
	case "soft_delete_old":
		*m = BundleModeSoftDeleteOld
	default:
		return errors.New("invalid bundle mode")
	}
	return nil
}

type MatchingMode string

const (
	MatchingModeLegacy       MatchingMode = "legacy"
	MatchingModeHierarchical MatchingMode = "hierarchical"
)

func (m *MatchingMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "legacy":
		*m = MatchingModeLegacy
	case "hierarchical":
		*m = MatchingModeHierarchical
	default:
		return errors.New("invalid matching mode")
	}
	return nil
}
