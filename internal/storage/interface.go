// Package storage provides persistence interfaces and implementations for
// the EBICS client.
//
// # Interface Design
//
// The storage layer is organized into focused interfaces:
//
//   - [BankStore]: EBICS hosts the client talks to
//   - [SubscriberStore]: subscribers and their key-registration status
//   - [PartnerStore]: partners and their order id counters
//   - [TraceStore]: traced request and response documents
//
// The [Store] interface combines all sub-stores for convenience. Key
// material is not kept here; see the keystore package.
//
// # Implementations
//
// The badgerstore sub-package provides an embedded store for single-host
// deployments, the mongodb sub-package a shared MongoDB store with trace
// bodies in GridFS.
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store is the main storage interface combining all sub-stores
type Store interface {
	BankStore
	SubscriberStore
	PartnerStore
	TraceStore

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}

// BankStore manages bank records
type BankStore interface {
	// SaveBank creates or replaces a bank
	SaveBank(ctx context.Context, bank *Bank) error

	// GetBank retrieves a bank by host ID
	GetBank(ctx context.Context, hostID string) (*Bank, error)

	// ListBanks returns all banks
	ListBanks(ctx context.Context) ([]*Bank, error)
}

// SubscriberStore manages subscriber records
type SubscriberStore interface {
	// SaveSubscriber creates or replaces a subscriber
	SaveSubscriber(ctx context.Context, sub *Subscriber) error

	// GetSubscriber retrieves a subscriber
	GetSubscriber(ctx context.Context, hostID, partnerID, userID string) (*Subscriber, error)

	// ListSubscribers returns the subscribers of a bank
	ListSubscribers(ctx context.Context, hostID string) ([]*Subscriber, error)

	// DeleteSubscriber removes a subscriber
	DeleteSubscriber(ctx context.Context, hostID, partnerID, userID string) error
}

// PartnerStore manages partner records
type PartnerStore interface {
	// SavePartner creates or replaces a partner
	SavePartner(ctx context.Context, partner *Partner) error

	// GetPartner retrieves a partner
	GetPartner(ctx context.Context, hostID, partnerID string) (*Partner, error)
}

// TraceStore manages traced documents
type TraceStore interface {
	// AppendTrace stores a trace record
	AppendTrace(ctx context.Context, t *Trace) error

	// GetTrace retrieves a trace record including its body
	GetTrace(ctx context.Context, id string) (*Trace, error)

	// ListTraces returns trace records, newest first, without bodies
	ListTraces(ctx context.Context, filter *TraceFilter) ([]*Trace, error)
}

// Domain models

// Bank is an EBICS host
type Bank struct {
	HostID          string    `bson:"_id" json:"hostId"`
	URL             string    `bson:"url" json:"url"`
	Name            string    `bson:"name" json:"name"`
	UseCertificates bool      `bson:"use_certificates" json:"useCertificates"`
	CreatedAt       time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `bson:"updated_at" json:"updatedAt"`
}

// Subscriber is a user registered with a partner at a bank
type Subscriber struct {
	HostID    string    `bson:"host_id" json:"hostId"`
	PartnerID string    `bson:"partner_id" json:"partnerId"`
	UserID    string    `bson:"user_id" json:"userId"`
	Name      string    `bson:"name" json:"name"`
	DN        string    `bson:"dn" json:"dn"`
	Version   string    `bson:"version" json:"version"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Partner holds the order id counter of a customer contract
type Partner struct {
	HostID       string    `bson:"host_id" json:"hostId"`
	PartnerID    string    `bson:"partner_id" json:"partnerId"`
	OrderCounter int       `bson:"order_counter" json:"orderCounter"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updatedAt"`
}

// Trace is one stored request or response document
type Trace struct {
	ID            string            `bson:"_id" json:"id"`
	Time          time.Time         `bson:"time" json:"time"`
	Direction     string            `bson:"direction" json:"direction"`
	Phase         string            `bson:"phase,omitempty" json:"phase,omitempty"`
	OrderType     string            `bson:"order_type,omitempty" json:"orderType,omitempty"`
	TransactionID string            `bson:"transaction_id,omitempty" json:"transactionId,omitempty"`
	Segment       int               `bson:"segment,omitempty" json:"segment,omitempty"`
	HostID        string            `bson:"host_id" json:"hostId"`
	PartnerID     string            `bson:"partner_id" json:"partnerId"`
	UserID        string            `bson:"user_id" json:"userId"`
	Params        map[string]string `bson:"params,omitempty" json:"params,omitempty"`
	Size          int               `bson:"size" json:"size"`
	Body          []byte            `bson:"-" json:"body,omitempty"`
	// BodyID references the body in GridFS (mongodb only)
	BodyID string `bson:"body_id,omitempty" json:"-"`
}

// TraceFilter selects trace records; empty fields match everything
type TraceFilter struct {
	HostID        string
	UserID        string
	TransactionID string
	OrderType     string
	Since         *time.Time
	Limit         int
}

// Matches reports whether t satisfies the filter
func (f *TraceFilter) Matches(t *Trace) bool {
	if f == nil {
		return true
	}
	switch {
	case f.HostID != "" && t.HostID != f.HostID,
		f.UserID != "" && t.UserID != f.UserID,
		f.TransactionID != "" && t.TransactionID != f.TransactionID,
		f.OrderType != "" && t.OrderType != f.OrderType,
		f.Since != nil && t.Time.Before(*f.Since):
		return false
	}
	return true
}
