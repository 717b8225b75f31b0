package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/robertspest/reorderdesk/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the inventory workbook.
const (
	SheetProducts     = "Master Inventory"
	SheetVendors      = "Vendors"
	SheetReorders     = "Reorder Log"
	SheetTransactions = "All Transactions"
)

// Product columns
const (
	colProductID        = "Product ID"
	colProductName      = "Product Name"
	colQuantityOnHand   = "Quantity on Hand"
	colContainerUnit    = "Container Unit"
	colReorderThreshold = "Reorder Threshold"
	colReorderAmount    = "Reorder Amount"
	colDistributor      = "Distributor"
	colCostPerUnit      = "Cost Per Unit"
	colLocation         = "Location"
)

// Vendor columns
const (
	colVendorID   = "Vendor ID"
	colVendorName = "Vendor Name"
	colEmail      = "Email"
	colCCEmails   = "CC Emails"
	colNotes      = "Notes"
)

// Reorder log columns
const (
	colRequestID         = "Request ID"
	colTimestamp         = "Timestamp"
	colUser              = "User"
	colIP                = "IP"
	colVendor            = "Vendor"
	colItems             = "Items"
	colLineItems         = "Line Items"
	colStatus            = "Status"
	colApprovedTimestamp = "Approved Timestamp"
	colApprovedBy        = "Approved By"
	colApprovedIP        = "Approved IP"
	colDeliveryMethod    = "Delivery Method"
	colPONumber          = "PO Number"
	colPickupBy          = "Pickup By"
	colNeededBy          = "Needed By"
	colDeliveryNotes     = "Delivery Notes"
	colVendorNotes       = "Vendor Notes"
	colInternalNotes     = "Internal Notes"
)

var (
	productColumns = []string{colProductID, colProductName, colQuantityOnHand, colContainerUnit,
		colReorderThreshold, colReorderAmount, colDistributor, colVendorID, colCostPerUnit, colLocation}
	vendorColumns  = []string{colVendorID, colVendorName, colEmail, colCCEmails, colNotes}
	reorderColumns = []string{colRequestID, colTimestamp, colUser, colIP, colVendorID, colVendor,
		colItems, colLineItems, colStatus, colNotes, colApprovedTimestamp, colApprovedBy, colApprovedIP,
		colDeliveryMethod, colPONumber, colPickupBy, colNeededBy, colDeliveryNotes, colVendorNotes,
		colInternalNotes}
	transactionColumns = []string{model.TxColTimestamp, model.TxColUser, model.TxColProductName,
		model.TxColDelta, model.TxColNewQuantity, model.TxColLocation, model.TxColNotes}
)

// Namespaces for identities derived from legacy rows without an id column.
var (
	productNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("reorderdesk/product"))
	vendorNamespace  = uuid.NewSHA1(uuid.NameSpaceOID, []byte("reorderdesk/vendor"))
	requestNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("reorderdesk/reorder"))
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/06 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006",
}

type sheetRole int

const (
	roleProducts sheetRole = iota
	roleVendors
	roleReorders
	roleTransactions
)

// sheetState remembers what was read from a sheet so a rewrite keeps the
// original column order and the rows that could not be decoded.
type sheetState struct {
	name      string
	header    []string
	malformed []map[string]string
	dirty     bool
}

// Document is a decoded inventory workbook.
type Document struct {
	Dataset
	Issues []RowIssue

	file   *excelize.File
	sheets map[sheetRole]*sheetState
}

func (d *Document) markDirty(roles ...sheetRole) {
	for _, r := range roles {
		d.sheets[r].dirty = true
	}
}

// Close releases the underlying workbook.
func (d *Document) Close() error {
	if d.file == nil {
		return nil
	}
	return d.file.Close()
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func resolveMasterSheet(names []string) string {
	for _, n := range names {
		if n == SheetProducts {
			return n
		}
	}
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), "inventory") {
			return n
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return SheetProducts
}

// DecodeWorkbook reads every sheet of f. Rows that cannot be turned into an
// entity are reported in Issues and kept for write-back.
func DecodeWorkbook(f *excelize.File) (*Document, error) {
	names := f.GetSheetList()
	doc := &Document{
		file: f,
		sheets: map[sheetRole]*sheetState{
			roleProducts:     {name: resolveMasterSheet(names)},
			roleVendors:      {name: SheetVendors},
			roleReorders:     {name: SheetReorders},
			roleTransactions: {name: SheetTransactions},
		},
	}

	read := func(role sheetRole) ([]map[string]string, []int, error) {
		st := doc.sheets[role]
		idx, err := f.GetSheetIndex(st.name)
		if err != nil {
			return nil, nil, fmt.Errorf("look up sheet %q: %w", st.name, err)
		}
		if idx < 0 {
			return nil, nil, nil
		}
		rows, err := f.GetRows(st.name)
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %q: %w", st.name, err)
		}
		header, records, lines := splitRows(rows)
		st.header = header
		return records, lines, nil
	}

	vendorRows, vendorLines, err := read(roleVendors)
	if err != nil {
		return nil, err
	}
	vendorByName := make(map[string]uuid.UUID)
	seenVendors := make(map[uuid.UUID]bool)
	for i, row := range vendorRows {
		v, err := decodeVendorRow(row)
		if err == nil && seenVendors[v.ID] {
			err = fmt.Errorf("duplicate vendor id %s", v.ID)
		}
		if err != nil {
			doc.reject(roleVendors, vendorLines[i], row, err)
			continue
		}
		seenVendors[v.ID] = true
		if _, ok := vendorByName[normalizeName(v.Name)]; !ok {
			vendorByName[normalizeName(v.Name)] = v.ID
		}
		doc.Vendors = append(doc.Vendors, v)
	}

	productRows, productLines, err := read(roleProducts)
	if err != nil {
		return nil, err
	}
	// Distributor names are only resolved on sheets written before products
	// carried a vendor id.
	distributors := vendorByName
	if slices.Contains(doc.sheets[roleProducts].header, colVendorID) {
		distributors = nil
	}
	productByName := make(map[string]model.Product)
	seenProducts := make(map[uuid.UUID]bool)
	for i, row := range productRows {
		p, err := decodeProductRow(row, distributors)
		if err == nil && seenProducts[p.ID] {
			err = fmt.Errorf("duplicate product id %s", p.ID)
		}
		if err != nil {
			doc.reject(roleProducts, productLines[i], row, err)
			continue
		}
		seenProducts[p.ID] = true
		if _, ok := productByName[normalizeName(p.Name)]; !ok {
			productByName[normalizeName(p.Name)] = p
		}
		doc.Products = append(doc.Products, p)
	}

	reorderRows, reorderLines, err := read(roleReorders)
	if err != nil {
		return nil, err
	}
	seenRequests := make(map[uuid.UUID]bool)
	for i, row := range reorderRows {
		r, err := decodeReorderRow(row, vendorByName, seenVendors, productByName)
		if err == nil && seenRequests[r.ID] {
			err = fmt.Errorf("duplicate request id %s", r.ID)
		}
		if err != nil {
			doc.reject(roleReorders, reorderLines[i], row, err)
			continue
		}
		seenRequests[r.ID] = true
		doc.Requests = append(doc.Requests, r)
	}

	st := doc.sheets[roleTransactions]
	if idx, err := f.GetSheetIndex(st.name); err == nil && idx >= 0 {
		rows, err := f.GetRows(st.name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", st.name, err)
		}
		if len(rows) > 0 {
			st.header = trimAll(rows[0])
		}
		for _, cells := range rows[min(1, len(rows)):] {
			if isBlankRow(cells) {
				continue
			}
			tx := model.StockTransaction{}
			for c, col := range st.header {
				if col == "" {
					continue
				}
				val := ""
				if c < len(cells) {
					val = cells[c]
				}
				tx.Cells = append(tx.Cells, model.Cell{Column: col, Value: val})
			}
			doc.Transactions = append(doc.Transactions, tx)
		}
	}
	return doc, nil
}

func (d *Document) reject(role sheetRole, line int, row map[string]string, err error) {
	st := d.sheets[role]
	st.malformed = append(st.malformed, row)
	d.Issues = append(d.Issues, RowIssue{Sheet: st.name, Row: line, Reason: err.Error()})
}

// splitRows separates the header and keys every non-blank row by column
// name. lines holds the 1-based sheet row of each record.
func splitRows(rows [][]string) (header []string, records []map[string]string, lines []int) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	header = trimAll(rows[0])
	for i, cells := range rows[1:] {
		if isBlankRow(cells) {
			continue
		}
		rec := make(map[string]string, len(header))
		for c, col := range header {
			if col == "" || c >= len(cells) {
				continue
			}
			if v := strings.TrimSpace(cells[c]); v != "" {
				rec[col] = v
			}
		}
		records = append(records, rec)
		lines = append(lines, i+2)
	}
	return header, records, lines
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func extensionOf(row map[string]string, standard []string) map[string]string {
	known := make(map[string]bool, len(standard))
	for _, c := range standard {
		known[c] = true
	}
	var ext map[string]string
	for k, v := range row {
		if known[k] {
			continue
		}
		if ext == nil {
			ext = make(map[string]string)
		}
		ext[k] = v
	}
	return ext
}

func setExtension(ext map[string]string, key, value string) map[string]string {
	if ext == nil {
		ext = make(map[string]string)
	}
	ext[key] = value
	return ext
}

func parseID(raw string, namespace uuid.UUID, derivedFrom string) (uuid.UUID, error) {
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid id %q", raw)
		}
		return id, nil
	}
	return uuid.NewSHA1(namespace, []byte(derivedFrom)), nil
}

// parseCount reads a non-negative whole number. Spreadsheet tools often
// render integers as "10.0", which is accepted.
func parseCount(raw, column string) (int, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", column, raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%s: %q is not a whole number", column, raw)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%s: %q is negative", column, raw)
	}
	return int(d.IntPart()), nil
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeVendorRow(row map[string]string) (model.Vendor, error) {
	name := row[colVendorName]
	if name == "" {
		return model.Vendor{}, errors.New("vendor name is blank")
	}
	id, err := parseID(row[colVendorID], vendorNamespace, normalizeName(name))
	if err != nil {
		return model.Vendor{}, err
	}
	return model.Vendor{
		ID:        id,
		Name:      name,
		Email:     row[colEmail],
		CCEmails:  model.SplitEmails(row[colCCEmails]),
		Notes:     row[colNotes],
		Extension: extensionOf(row, vendorColumns),
	}, nil
}

func decodeProductRow(row map[string]string, vendorByName map[string]uuid.UUID) (model.Product, error) {
	name := row[colProductName]
	if name == "" {
		return model.Product{}, errors.New("product name is blank")
	}
	id, err := parseID(row[colProductID], productNamespace, normalizeName(name))
	if err != nil {
		return model.Product{}, err
	}
	p := model.Product{
		ID:            id,
		Name:          name,
		ContainerUnit: row[colContainerUnit],
		Location:      row[colLocation],
		Extension:     extensionOf(row, productColumns),
	}
	if raw := row[colQuantityOnHand]; raw != "" {
		if p.QuantityOnHand, err = parseCount(raw, colQuantityOnHand); err != nil {
			return model.Product{}, err
		}
	}
	if raw := row[colReorderThreshold]; raw != "" {
		if p.ReorderThreshold, err = parseCount(raw, colReorderThreshold); err != nil {
			return model.Product{}, err
		}
	}
	raw := row[colReorderAmount]
	if raw == "" {
		return model.Product{}, fmt.Errorf("%s is blank", colReorderAmount)
	}
	if p.ReorderAmount, err = parseCount(raw, colReorderAmount); err != nil {
		return model.Product{}, err
	}
	if raw := row[colCostPerUnit]; raw != "" {
		cost, err := decimal.NewFromString(strings.NewReplacer("$", "", ",", "").Replace(raw))
		if err != nil {
			return model.Product{}, fmt.Errorf("%s: %q is not a number", colCostPerUnit, raw)
		}
		p.CostPerUnit = decimal.NewNullDecimal(cost)
	}
	switch dist := row[colDistributor]; {
	case row[colVendorID] != "":
		vid, err := uuid.Parse(row[colVendorID])
		if err != nil {
			return model.Product{}, fmt.Errorf("invalid vendor id %q", row[colVendorID])
		}
		p.VendorID = &vid
	case dist != "":
		if vid, ok := vendorByName[normalizeName(dist)]; ok {
			p.VendorID = &vid
		} else {
			p.Extension = setExtension(p.Extension, colDistributor, dist)
		}
	}
	if err := p.Validate(); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func decodeReorderRow(row map[string]string, vendorByName map[string]uuid.UUID, knownVendors map[uuid.UUID]bool, productByName map[string]model.Product) (model.ReorderRequest, error) {
	rawTS := row[colTimestamp]
	if rawTS == "" {
		return model.ReorderRequest{}, errors.New("timestamp is blank")
	}
	created, err := parseTimestamp(rawTS)
	if err != nil {
		return model.ReorderRequest{}, err
	}
	vendorName := row[colVendor]
	id, err := parseID(row[colRequestID], requestNamespace, rawTS+"|"+normalizeName(vendorName))
	if err != nil {
		return model.ReorderRequest{}, err
	}

	r := model.ReorderRequest{
		ID:          id,
		CreatedAt:   created,
		CreatedBy:   row[colUser],
		CreatedFrom: row[colIP],
		Notes:       row[colNotes],
		Extension:   extensionOf(row, reorderColumns),
	}

	switch {
	case row[colVendorID] != "":
		if r.VendorID, err = uuid.Parse(row[colVendorID]); err != nil {
			return model.ReorderRequest{}, fmt.Errorf("invalid vendor id %q", row[colVendorID])
		}
	case vendorName != "":
		vid, ok := vendorByName[normalizeName(vendorName)]
		if !ok {
			vid = uuid.NewSHA1(vendorNamespace, []byte(normalizeName(vendorName)))
		}
		r.VendorID = vid
	default:
		return model.ReorderRequest{}, errors.New("vendor is blank")
	}
	// A vendor that is not on the Vendors sheet keeps its display name.
	if vendorName != "" && !knownVendors[r.VendorID] {
		r.Extension = setExtension(r.Extension, colVendor, vendorName)
	}

	if raw := row[colLineItems]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &r.Items); err != nil {
			return model.ReorderRequest{}, fmt.Errorf("invalid line items: %w", err)
		}
	} else if r.Items, err = parseLegacyItems(row[colItems], productByName); err != nil {
		return model.ReorderRequest{}, err
	}

	r.Status = model.StatusPending
	if raw := row[colStatus]; raw != "" {
		r.Status = model.ReorderStatus(strings.ToUpper(raw))
	}
	if !r.Status.Valid() {
		return model.ReorderRequest{}, fmt.Errorf("unknown status %q", row[colStatus])
	}

	if raw := row[colApprovedTimestamp]; raw != "" {
		decided, err := parseTimestamp(raw)
		if err != nil {
			return model.ReorderRequest{}, err
		}
		method := model.DeliveryMethod(strings.ToUpper(row[colDeliveryMethod]))
		if method != "" && !method.Valid() {
			return model.ReorderRequest{}, fmt.Errorf("unknown delivery method %q", row[colDeliveryMethod])
		}
		r.Approval = &model.ApprovalRecord{
			DecidedAt:      decided,
			DecidedBy:      row[colApprovedBy],
			DecidedFrom:    row[colApprovedIP],
			DeliveryMethod: method,
			PONumber:       row[colPONumber],
			PickupBy:       row[colPickupBy],
			NeededBy:       row[colNeededBy],
			DeliveryNotes:  row[colDeliveryNotes],
			VendorNotes:    row[colVendorNotes],
			InternalNotes:  row[colInternalNotes],
		}
	}
	if err := r.Validate(); err != nil {
		return model.ReorderRequest{}, err
	}
	return r, nil
}

// parseLegacyItems reads the "Name – Order: 10 Case (...)" descriptions
// written before line items were stored as JSON.
func parseLegacyItems(text string, productByName map[string]model.Product) ([]model.LineItem, error) {
	var items []model.LineItem
	for _, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		namePart, rest, ok := strings.Cut(part, "Order:")
		if !ok {
			return nil, fmt.Errorf("item %q has no order quantity", part)
		}
		name, _, _ := strings.Cut(namePart, "–")
		name = strings.TrimRight(strings.TrimSpace(name), " -")
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return nil, fmt.Errorf("item %q has no order quantity", part)
		}
		qty, err := parseCount(fields[0], colItems)
		if err != nil {
			return nil, err
		}
		p, ok := productByName[normalizeName(name)]
		if !ok {
			return nil, fmt.Errorf("item %q references unknown product %q", part, name)
		}
		items = append(items, model.LineItem{ProductID: p.ID, Quantity: qty})
	}
	if len(items) == 0 {
		return nil, errors.New("request has no items")
	}
	return items, nil
}

// describeItems renders the human readable Items column.
func describeItems(items []model.LineItem, products map[uuid.UUID]model.Product) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			parts = append(parts, fmt.Sprintf("%s – Order: %d", it.ProductID, it.Quantity))
			continue
		}
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s – Order: %d %s", p.Name, it.Quantity, p.ContainerUnit)))
	}
	return strings.Join(parts, "; ")
}

func productValues(p model.Product, vendorNames map[uuid.UUID]string) map[string]interface{} {
	vals := make(map[string]interface{}, len(productColumns)+len(p.Extension))
	for k, v := range p.Extension {
		vals[k] = v
	}
	vals[colProductID] = p.ID.String()
	vals[colProductName] = p.Name
	vals[colQuantityOnHand] = p.QuantityOnHand
	vals[colContainerUnit] = p.ContainerUnit
	vals[colReorderThreshold] = p.ReorderThreshold
	vals[colReorderAmount] = p.ReorderAmount
	vals[colLocation] = p.Location
	vals[colCostPerUnit] = ""
	if p.CostPerUnit.Valid {
		vals[colCostPerUnit] = p.CostPerUnit.Decimal.String()
	}
	if p.HasVendor() {
		vals[colVendorID] = p.VendorID.String()
		if name, ok := vendorNames[*p.VendorID]; ok {
			vals[colDistributor] = name
		}
	}
	return vals
}

func vendorValues(v model.Vendor) map[string]interface{} {
	vals := make(map[string]interface{}, len(vendorColumns)+len(v.Extension))
	for k, val := range v.Extension {
		vals[k] = val
	}
	vals[colVendorID] = v.ID.String()
	vals[colVendorName] = v.Name
	vals[colEmail] = v.Email
	vals[colCCEmails] = model.JoinEmails(v.CCEmails)
	vals[colNotes] = v.Notes
	return vals
}

func reorderValues(r model.ReorderRequest, vendorNames map[uuid.UUID]string, products map[uuid.UUID]model.Product) (map[string]interface{}, error) {
	lineItems, err := json.Marshal(r.Items)
	if err != nil {
		return nil, fmt.Errorf("encode line items of %s: %w", r.ID, err)
	}
	vals := make(map[string]interface{}, len(reorderColumns)+len(r.Extension))
	for k, v := range r.Extension {
		vals[k] = v
	}
	vals[colRequestID] = r.ID.String()
	vals[colTimestamp] = formatTimestamp(r.CreatedAt)
	vals[colUser] = r.CreatedBy
	vals[colIP] = r.CreatedFrom
	vals[colVendorID] = r.VendorID.String()
	if name, ok := vendorNames[r.VendorID]; ok {
		vals[colVendor] = name
	}
	vals[colItems] = describeItems(r.Items, products)
	vals[colLineItems] = string(lineItems)
	vals[colStatus] = string(r.Status)
	vals[colNotes] = r.Notes
	if a := r.Approval; a != nil {
		vals[colApprovedTimestamp] = formatTimestamp(a.DecidedAt)
		vals[colApprovedBy] = a.DecidedBy
		vals[colApprovedIP] = a.DecidedFrom
		vals[colDeliveryMethod] = string(a.DeliveryMethod)
		vals[colPONumber] = a.PONumber
		vals[colPickupBy] = a.PickupBy
		vals[colNeededBy] = a.NeededBy
		vals[colDeliveryNotes] = a.DeliveryNotes
		vals[colVendorNotes] = a.VendorNotes
		vals[colInternalNotes] = a.InternalNotes
	}
	return vals, nil
}

// buildHeader keeps the original column order, appends missing standard
// columns and then any extra keys in sorted order.
func buildHeader(original, standard []string, rows []map[string]interface{}, raw []map[string]string) []string {
	header := make([]string, 0, len(original)+len(standard))
	seen := make(map[string]bool)
	add := func(col string) {
		if col == "" || seen[col] {
			return
		}
		seen[col] = true
		header = append(header, col)
	}
	for _, c := range original {
		add(c)
	}
	for _, c := range standard {
		add(c)
	}
	var extra []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
	}
	for _, row := range raw {
		for k := range row {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	for _, c := range extra {
		add(c)
	}
	return header
}

// writeSheet replaces the content of a sheet, creating it when missing.
func writeSheet(f *excelize.File, name string, header []string, rows []map[string]interface{}, raw []map[string]string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return fmt.Errorf("look up sheet %q: %w", name, err)
	}
	previous := 0
	if idx < 0 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
	} else {
		existing, err := f.GetRows(name)
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", name, err)
		}
		previous = len(existing)
	}

	line := 1
	put := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		line++
		return f.SetSheetRow(name, cell, &values)
	}

	headerRow := make([]interface{}, len(header))
	for i, c := range header {
		headerRow[i] = c
	}
	if err := put(headerRow); err != nil {
		return fmt.Errorf("write header of %q: %w", name, err)
	}
	for _, row := range rows {
		values := make([]interface{}, len(header))
		for i, c := range header {
			if v, ok := row[c]; ok {
				values[i] = v
			} else {
				values[i] = ""
			}
		}
		if err := put(values); err != nil {
			return fmt.Errorf("write row of %q: %w", name, err)
		}
	}
	for _, row := range raw {
		values := make([]interface{}, len(header))
		for i, c := range header {
			values[i] = row[c]
		}
		if err := put(values); err != nil {
			return fmt.Errorf("write row of %q: %w", name, err)
		}
	}
	for r := previous; r >= line; r-- {
		if err := f.RemoveRow(name, r); err != nil {
			return fmt.Errorf("trim sheet %q: %w", name, err)
		}
	}
	return nil
}

func writeTransactions(f *excelize.File, name string, original []string, txs []model.StockTransaction) error {
	header := append([]string(nil), original...)
	if len(header) == 0 {
		header = append(header, transactionColumns...)
	}
	seen := make(map[string]bool, len(header))
	for _, c := range header {
		seen[c] = true
	}
	rows := make([]map[string]interface{}, 0, len(txs))
	for _, tx := range txs {
		row := make(map[string]interface{}, len(tx.Cells))
		for _, c := range tx.Cells {
			if !seen[c.Column] {
				seen[c.Column] = true
				header = append(header, c.Column)
			}
			if _, dup := row[c.Column]; !dup {
				row[c.Column] = c.Value
			}
		}
		rows = append(rows, row)
	}
	return writeSheet(f, name, header, rows, nil)
}

func indexDataset(ds Dataset) (map[uuid.UUID]string, map[uuid.UUID]model.Product) {
	vendorNames := make(map[uuid.UUID]string, len(ds.Vendors))
	for _, v := range ds.Vendors {
		vendorNames[v.ID] = v.Name
	}
	products := make(map[uuid.UUID]model.Product, len(ds.Products))
	for _, p := range ds.Products {
		products[p.ID] = p
	}
	return vendorNames, products
}

// flush rewrites the sheets touched since the document was decoded.
func (d *Document) flush() error {
	vendorNames, products := indexDataset(d.Dataset)

	if st := d.sheets[roleVendors]; st.dirty {
		rows := make([]map[string]interface{}, 0, len(d.Vendors))
		for _, v := range d.Vendors {
			rows = append(rows, vendorValues(v))
		}
		header := buildHeader(st.header, vendorColumns, rows, st.malformed)
		if err := writeSheet(d.file, st.name, header, rows, st.malformed); err != nil {
			return err
		}
	}
	if st := d.sheets[roleProducts]; st.dirty {
		rows := make([]map[string]interface{}, 0, len(d.Products))
		for _, p := range d.Products {
			rows = append(rows, productValues(p, vendorNames))
		}
		header := buildHeader(st.header, productColumns, rows, st.malformed)
		if err := writeSheet(d.file, st.name, header, rows, st.malformed); err != nil {
			return err
		}
	}
	if st := d.sheets[roleReorders]; st.dirty {
		rows := make([]map[string]interface{}, 0, len(d.Requests))
		for _, r := range d.Requests {
			vals, err := reorderValues(r, vendorNames, products)
			if err != nil {
				return err
			}
			rows = append(rows, vals)
		}
		header := buildHeader(st.header, reorderColumns, rows, st.malformed)
		if err := writeSheet(d.file, st.name, header, rows, st.malformed); err != nil {
			return err
		}
	}
	if st := d.sheets[roleTransactions]; st.dirty {
		if err := writeTransactions(d.file, st.name, st.header, d.Transactions); err != nil {
			return err
		}
	}
	return nil
}

// newWorkbook returns an empty workbook with all four sheets and their headers.
func newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetProducts); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	for _, s := range []struct {
		name   string
		header []string
	}{
		{SheetProducts, productColumns},
		{SheetVendors, vendorColumns},
		{SheetReorders, reorderColumns},
		{SheetTransactions, transactionColumns},
	} {
		if err := writeSheet(f, s.name, s.header, nil, nil); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// EncodeWorkbook renders ds as a new workbook. The transactions sheet is
// only included when includeTransactions is set.
func EncodeWorkbook(ds Dataset, includeTransactions bool) (*excelize.File, error) {
	f, err := newWorkbook()
	if err != nil {
		return nil, err
	}
	doc := &Document{
		Dataset: ds,
		file:    f,
		sheets: map[sheetRole]*sheetState{
			roleProducts:     {name: SheetProducts, dirty: true},
			roleVendors:      {name: SheetVendors, dirty: true},
			roleReorders:     {name: SheetReorders, dirty: true},
			roleTransactions: {name: SheetTransactions, dirty: includeTransactions},
		},
	}
	if err := doc.flush(); err != nil {
		f.Close()
		return nil, err
	}
	if !includeTransactions {
		if err := f.DeleteSheet(SheetTransactions); err != nil {
			f.Close()
			return nil, fmt.Errorf("drop transactions sheet: %w", err)
		}
	}
	return f, nil
}
