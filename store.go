package subdoc

import "context"

// Store is the key-value store that durably holds documents and brokers CAS.
//
// Implementations must make CompareAndSwap atomic with respect to other
// writers of the same key: the new bytes and CAS become visible together,
// and only if the stored CAS still equals expectedCAS.
type Store interface {
	// Fetch returns the document stored under key and its CAS, or
	// ErrKeyNotFound.
	Fetch(ctx context.Context, key string) (doc []byte, cas uint64, err error)

	// CompareAndSwap replaces the document under key if its CAS equals
	// expectedCAS. It fails with ErrCASMismatch when the CAS moved on and
	// with ErrKeyNotFound when the key is gone.
	CompareAndSwap(ctx context.Context, key string, doc []byte, expectedCAS uint64, opts WriteOptions) (WriteResult, error)
}

// WriteOptions tune a conditional write.
type WriteOptions struct {
	// MutationSeqno asks the store to assign a sequence number to the write.
	MutationSeqno bool
}

// WriteResult reports the identity of a committed write.
type WriteResult struct {
	CAS   uint64
	Seqno uint64 // zero unless WriteOptions.MutationSeqno was set
}
