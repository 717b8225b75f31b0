package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/robertspest/reorderdesk/internal/model"
)

// The record builders marshal the entity first and then derive every indexed
// column from the marshalled payload, so the projection can always be
// recomputed from what is stored.

func productRecord(p model.Product) (model.ProductRecord, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return model.ProductRecord{}, fmt.Errorf("encode product %s: %w", p.ID, err)
	}
	return indexProduct(string(payload))
}

func indexProduct(payload string) (model.ProductRecord, error) {
	p, err := decodeProduct(payload)
	if err != nil {
		return model.ProductRecord{}, err
	}
	return model.ProductRecord{
		ID:               p.ID,
		Name:             p.Name,
		VendorID:         p.VendorID,
		Location:         p.Location,
		ContainerUnit:    p.ContainerUnit,
		QuantityOnHand:   p.QuantityOnHand,
		ReorderThreshold: p.ReorderThreshold,
		ReorderAmount:    p.ReorderAmount,
		Payload:          payload,
	}, nil
}

func decodeProduct(payload string) (model.Product, error) {
	var p model.Product
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return model.Product{}, fmt.Errorf("decode product payload: %w", err)
	}
	return p, nil
}

func vendorRecord(v model.Vendor) (model.VendorRecord, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return model.VendorRecord{}, fmt.Errorf("encode vendor %s: %w", v.ID, err)
	}
	return indexVendor(string(payload))
}

func indexVendor(payload string) (model.VendorRecord, error) {
	v, err := decodeVendor(payload)
	if err != nil {
		return model.VendorRecord{}, err
	}
	return model.VendorRecord{
		ID:       v.ID,
		Name:     v.Name,
		Email:    v.Email,
		CCEmails: model.JoinEmails(v.CCEmails),
		Payload:  payload,
	}, nil
}

func decodeVendor(payload string) (model.Vendor, error) {
	var v model.Vendor
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return model.Vendor{}, fmt.Errorf("decode vendor payload: %w", err)
	}
	return v, nil
}

func reorderRecord(r model.ReorderRequest) (model.ReorderRecord, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return model.ReorderRecord{}, fmt.Errorf("encode reorder request %s: %w", r.ID, err)
	}
	return indexReorder(string(payload))
}

func indexReorder(payload string) (model.ReorderRecord, error) {
	r, err := decodeReorder(payload)
	if err != nil {
		return model.ReorderRecord{}, err
	}
	rec := model.ReorderRecord{
		ID:        r.ID,
		CreatedAt: r.CreatedAt.UTC(),
		CreatedBy: r.CreatedBy,
		VendorID:  r.VendorID,
		Status:    string(r.Status),
		Payload:   payload,
	}
	if a := r.Approval; a != nil {
		decided := a.DecidedAt.UTC()
		rec.ApprovedAt = &decided
		rec.ApprovedBy = a.DecidedBy
		rec.PONumber = a.PONumber
		rec.DeliveryMethod = string(a.DeliveryMethod)
		rec.PickupBy = a.PickupBy
	}
	return rec, nil
}

func decodeReorder(payload string) (model.ReorderRequest, error) {
	var r model.ReorderRequest
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return model.ReorderRequest{}, fmt.Errorf("decode reorder payload: %w", err)
	}
	return r, nil
}

func transactionRecord(t model.StockTransaction) (model.TransactionRecord, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return model.TransactionRecord{}, fmt.Errorf("encode transaction: %w", err)
	}
	return indexTransaction(string(payload))
}

func indexTransaction(payload string) (model.TransactionRecord, error) {
	t, err := decodeTransaction(payload)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	return model.TransactionRecord{
		Timestamp:   t.Get(model.TxColTimestamp, "Date"),
		ProductName: t.Get(model.TxColProductName, "Product"),
		Payload:     payload,
	}, nil
}

func decodeTransaction(payload string) (model.StockTransaction, error) {
	var t model.StockTransaction
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return model.StockTransaction{}, fmt.Errorf("decode transaction payload: %w", err)
	}
	return t, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
