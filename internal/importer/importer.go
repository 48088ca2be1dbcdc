// Package importer reads client lists from Excel workbooks and merges them
// into the office document.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JamesPrial/officedesk/internal/repo"
	"github.com/JamesPrial/officedesk/internal/storage"
)

// ErrNoNameColumn is returned when the header row has neither a name nor a
// code column.
var ErrNoNameColumn = errors.New("worksheet has no client name or code column")

// headerAliases maps normalized header text to client field keys. Headers not
// listed are kept verbatim as extended fields.
var headerAliases = map[string]string{
	"id":          "id",
	"code":        "code",
	"client code": "code",
	"客戶編號":        "code",
	"編號":          "code",
	"name":        "name",
	"client name": "name",
	"客戶名稱":        "name",
	"名稱":          "name",
	"tax id":      "taxId",
	"taxid":       "taxId",
	"統一編號":        "taxId",
	"統編":          "taxId",
	"phone":       "phone",
	"電話":          "phone",
	"contact":     "contact",
	"聯絡人":         "contact",
	"address":     "address",
	"地址":          "address",
	"email":       "email",
}

// Merger folds clients into the document. *repo.ClientRepo implements it.
type Merger interface {
	Merge(ctx context.Context, incoming []storage.Client) (repo.MergeResult, error)
}

// Report summarizes one import.
type Report struct {
	Sheet   string
	Rows    int
	Skipped int
	Added   int
	Updated int
}

// ReadClients parses the first worksheet of an .xlsx workbook. The first
// row is the header. Rows without a name or code are skipped and counted.
func ReadClients(r io.Reader) (clients []storage.Client, sheet string, skipped int, err error) {
	file, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", 0, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = file.Close() }()

	sheet = file.GetSheetName(0)
	if sheet == "" {
		return nil, "", 0, fmt.Errorf("no worksheet found")
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, sheet, 0, fmt.Errorf("read worksheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, sheet, 0, fmt.Errorf("worksheet %q is empty", sheet)
	}

	keys := mapHeader(rows[0])
	if !hasKey(keys, "name") && !hasKey(keys, "code") {
		return nil, sheet, 0, ErrNoNameColumn
	}

	clients = make([]storage.Client, 0, len(rows)-1)
	for _, row := range rows[1:] {
		c, ok := rowClient(keys, row)
		if !ok {
			skipped++
			continue
		}
		clients = append(clients, c)
	}
	return clients, sheet, skipped, nil
}

// Import reads a workbook and merges its clients through m.
func Import(ctx context.Context, m Merger, r io.Reader) (Report, error) {
	clients, sheet, skipped, err := ReadClients(r)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Sheet: sheet, Rows: len(clients) + skipped, Skipped: skipped}
	if len(clients) == 0 {
		return rep, nil
	}

	res, err := m.Merge(ctx, clients)
	if err != nil {
		return rep, fmt.Errorf("merge clients: %w", err)
	}
	rep.Added = res.Added
	rep.Updated = res.Updated
	return rep, nil
}

func mapHeader(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if alias, ok := headerAliases[strings.ToLower(h)]; ok {
			keys[i] = alias
			continue
		}
		keys[i] = h
	}
	return keys
}

func hasKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func rowClient(keys []string, row []string) (storage.Client, bool) {
	var c storage.Client
	for i, key := range keys {
		if key == "" {
			continue
		}
		value := cellValue(row, i)
		switch key {
		case "id":
			c.ID = value
		case "code":
			c.Code = value
		case "name":
			c.Name = value
		default:
			if value != "" {
				c.SetField(key, value)
			}
		}
	}
	if c.Name == "" && c.Code == "" {
		return storage.Client{}, false
	}
	return c, true
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
