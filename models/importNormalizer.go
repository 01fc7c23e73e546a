package models

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// excelEpoch is the day-zero of Excel serial dates.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// ImportColumnMapping maps line-item fields onto file column headers.
// Headers are matched case/whitespace-insensitively.
type ImportColumnMapping struct {
	AccountName     string `json:"accountName"`
	VendorName      string `json:"vendorName"`
	DistributorName string `json:"distributorName"`
	ProductName     string `json:"productName"`
	Usage           string `json:"usage"`
	Commission      string `json:"commission"`
	CommissionRate  string `json:"commissionRate"`
}

func (m *ImportColumnMapping) asMap() map[string]string {
	out := make(map[string]string)
	if m.AccountName != "" {
		out["accountName"] = m.AccountName
	}
	if m.VendorName != "" {
		out["vendorName"] = m.VendorName
	}
	if m.DistributorName != "" {
		out["distributorName"] = m.DistributorName
	}
	if m.ProductName != "" {
		out["productName"] = m.ProductName
	}
	if m.Usage != "" {
		out["usage"] = m.Usage
	}
	if m.Commission != "" {
		out["commission"] = m.Commission
	}
	if m.CommissionRate != "" {
		out["commissionRate"] = m.CommissionRate
	}
	return out
}

type ImportDepositInput struct {
	DepositName         string              `json:"depositName" binding:"required"`
	PaymentDate         string              `json:"paymentDate" binding:"required"`
	Month               string              `json:"month"`
	PaymentType         string              `json:"paymentType"`
	AccountId           int                 `json:"accountId"`
	DistributorId       int                 `json:"distributorId"`
	VendorId            int                 `json:"vendorId"`
	IdempotencyKey      *string             `json:"idempotencyKey"`
	TemplateId          int                 `json:"templateId"`
	SaveTemplateMapping bool                `json:"saveTemplateMapping"`
	Mapping             ImportColumnMapping `json:"mapping"`
}

type ImportDepositResult struct {
	DepositId   int  `json:"depositId"`
	LineCount   int  `json:"lineCount"`
	SkippedRows int  `json:"skippedRows"`
	Idempotent  bool `json:"idempotent"`
}

// ImportDeposit turns an uploaded tabular file plus a column mapping into a
// Deposit with validated line items. Submitting the same idempotency key
// again returns the previously created depositId flagged idempotent=true.
func ImportDeposit(ctx context.Context, input *ImportDepositInput, fileBytes []byte) (*ImportDepositResult, error) {

	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, NewValidationError("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)

	if input.Mapping.Usage == "" && input.Mapping.Commission == "" {
		return nil, NewValidationError("at least one of usage or commission must be mapped")
	}

	paymentDate, err := parseImportDate(input.PaymentDate)
	if err != nil {
		return nil, NewValidationError("invalid payment date: %v", err)
	}
	month := paymentDate
	if input.Month != "" {
		month, err = parseImportDate(input.Month)
		if err != nil {
			return nil, NewValidationError("invalid month: %v", err)
		}
	}

	rows, err := parseTabularFile(fileBytes)
	if err != nil {
		return nil, NewValidationError("unreadable file: %v", err)
	}
	if len(rows) == 0 {
		return nil, NewValidationError("file has no rows")
	}

	columns, err := resolveColumns(rows[0], input.Mapping.asMap())
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}

	deposit := Deposit{
		BusinessId:    businessId,
		AccountId:     input.AccountId,
		DistributorId: input.DistributorId,
		VendorId:      input.VendorId,
		Month:         month,
		PaymentDate:   paymentDate,
		DepositName:   input.DepositName,
		PaymentType:   input.PaymentType,
		ImportKey:     input.IdempotencyKey,
		Status:        DepositStatusPending,
		CreatedBy:     userId,
	}
	if err := tx.Create(&deposit).Error; err != nil {
		tx.Rollback()
		if isDuplicateKeyError(err) && input.IdempotencyKey != nil {
			return replayImport(ctx, businessId, *input.IdempotencyKey)
		}
		return nil, err
	}

	lines, skipped, err := buildLineItems(businessId, deposit.ID, rows[1:], columns, input.Mapping)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if len(lines) > 0 {
		if err := tx.Create(&lines).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if input.SaveTemplateMapping && input.TemplateId > 0 {
		if err := persistTemplateMapping(ctx, tx, businessId, input.TemplateId, input.Mapping.asMap()); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &ImportDepositResult{
		DepositId:   deposit.ID,
		LineCount:   len(lines),
		SkippedRows: skipped,
	}, nil
}

// replayImport returns the result of a previous submission with the same key.
func replayImport(ctx context.Context, businessId string, importKey string) (*ImportDepositResult, error) {
	db := config.GetDB()
	var existing Deposit
	if err := db.WithContext(ctx).
		Where("business_id = ? AND import_key = ?", businessId, importKey).
		First(&existing).Error; err != nil {
		return nil, err
	}
	var lineCount int64
	if err := db.WithContext(ctx).Model(&DepositLineItem{}).
		Where("business_id = ? AND deposit_id = ?", businessId, existing.ID).
		Count(&lineCount).Error; err != nil {
		return nil, err
	}
	return &ImportDepositResult{
		DepositId:  existing.ID,
		LineCount:  int(lineCount),
		Idempotent: true,
	}, nil
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// parseTabularFile reads an xlsx workbook (first sheet) or a CSV file into
// string rows.
func parseTabularFile(fileBytes []byte) ([][]string, error) {
	if bytes.HasPrefix(fileBytes, []byte("PK")) {
		f, err := excelize.OpenReader(bytes.NewReader(fileBytes))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		return f.GetRows(sheets[0])
	}

	reader := csv.NewReader(bytes.NewReader(fileBytes))
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

// normalizeHeader collapses whitespace and lowercases for header comparison.
func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(h), " "))
}

// resolveColumns maps each mapped field to its column index in the header
// row. A header matching more than one column is ambiguous; a header
// matching none is missing.
func resolveColumns(headerRow []string, mapping map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(mapping))
	for field, header := range mapping {
		wanted := normalizeHeader(header)
		found := -1
		for i, h := range headerRow {
			if normalizeHeader(h) != wanted {
				continue
			}
			if found >= 0 {
				return nil, NewAmbiguousColumnError(header)
			}
			found = i
		}
		if found < 0 {
			return nil, NewColumnNotFoundError(header)
		}
		out[field] = found
	}
	return out, nil
}

var summaryRowTokens = map[string]bool{
	"total":       true,
	"subtotal":    true,
	"grand total": true,
}

// isSummaryRow reports whether a row is a total/subtotal footer that must not
// become a line item. The first non-empty cell is checked, case-insensitively,
// with an optional trailing colon.
func isSummaryRow(row []string) bool {
	for _, cell := range row {
		trimmed := strings.TrimSpace(cell)
		if trimmed == "" {
			continue
		}
		token := normalizeHeader(strings.TrimSuffix(trimmed, ":"))
		return summaryRowTokens[token]
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellAt(row []string, idx int, ok bool) string {
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// buildLineItems converts data rows into line items, skipping empty and
// summary rows, applying the derived-field rules.
func buildLineItems(businessId string, depositId int, rows [][]string, columns map[string]int, mapping ImportColumnMapping) ([]DepositLineItem, int, error) {

	usageCol, usageMapped := columns["usage"]
	commissionCol, commissionMapped := columns["commission"]
	rateCol, rateMapped := columns["commissionRate"]
	accountCol, accountMapped := columns["accountName"]
	vendorCol, vendorMapped := columns["vendorName"]
	distributorCol, distributorMapped := columns["distributorName"]
	productCol, productMapped := columns["productName"]

	lines := make([]DepositLineItem, 0, len(rows))
	skipped := 0

	for i, row := range rows {
		if isEmptyRow(row) || isSummaryRow(row) {
			skipped++
			continue
		}

		usage := decimal.Zero
		commission := decimal.Zero
		rate := decimal.Zero

		if usageMapped {
			if cell := cellAt(row, usageCol, true); cell != "" {
				v, err := utils.ParseDecimal(cell)
				if err != nil {
					return nil, 0, NewValidationError("row %d: invalid usage value %q", i+2, cell)
				}
				usage = v
			}
		}
		if commissionMapped {
			if cell := cellAt(row, commissionCol, true); cell != "" {
				v, err := utils.ParseDecimal(cell)
				if err != nil {
					return nil, 0, NewValidationError("row %d: invalid commission value %q", i+2, cell)
				}
				commission = v
			}
		}
		if rateMapped {
			if cell := cellAt(row, rateCol, true); cell != "" {
				v, err := utils.ParseDecimal(cell)
				if err != nil {
					return nil, 0, NewValidationError("row %d: invalid commission rate %q", i+2, cell)
				}
				rate = v
			}
		}

		// commission-only files report the payout as the usage figure
		if !usageMapped {
			usage = commission
			rate = decimal.NewFromInt(1)
		} else if rate.IsZero() && !usage.IsZero() {
			rate = commission.Div(usage).Round(4)
		}

		lines = append(lines, DepositLineItem{
			BusinessId:            businessId,
			DepositId:             depositId,
			RowIndex:              i + 1,
			AccountNameRaw:        cellAt(row, accountCol, accountMapped),
			VendorNameRaw:         cellAt(row, vendorCol, vendorMapped),
			DistributorNameRaw:    cellAt(row, distributorCol, distributorMapped),
			ProductNameRaw:        cellAt(row, productCol, productMapped),
			Usage:                 usage,
			UsageAllocated:        decimal.Zero,
			UsageUnallocated:      usage,
			Commission:            commission,
			CommissionAllocated:   decimal.Zero,
			CommissionUnallocated: commission,
			CommissionRate:        rate,
			Status:                LineItemStatusUnmatched,
		})
	}

	return lines, skipped, nil
}

// parseImportDate accepts ISO date strings or Excel serial day-counts
// (epoch 1899-12-30, fractional part = intraday offset).
func parseImportDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	serial, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, errors.New("unrecognized date format")
	}
	return excelSerialToTime(serial), nil
}

func excelSerialToTime(serial float64) time.Time {
	days := int(serial)
	frac := serial - float64(days)
	t := excelEpoch.AddDate(0, 0, days)
	return t.Add(time.Duration(frac * 24 * float64(time.Hour)))
}
