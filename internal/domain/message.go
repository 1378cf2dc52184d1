package domain

import "time"

// EncodedMessage is one ciphertext blob in the durable transport queue,
// inbound or outbound. SenderID and DeviceID are zero until the decode
// pipeline attaches a verified sender.
type EncodedMessage struct {
	ID        int64
	SenderID  int64
	DeviceID  int64
	Payload   []byte
	Hash      ContentHash
	ShortHash int64
	Outbound  bool
	Processed bool
	// ProcessedAt is set when Processed flips to true and drives retention
	// GC. Zero means never processed.
	ProcessedAt time.Time
}

// NewEncodedMessage builds an unsaved EncodedMessage around payload, filling
// in the dedup hash columns.
func NewEncodedMessage(payload []byte, outbound bool) EncodedMessage {
	h := HashContent(payload)
	return EncodedMessage{
		Payload:   payload,
		Hash:      h,
		ShortHash: h.Short(),
		Outbound:  outbound,
	}
}

// Object is one plaintext application payload in the durable pipeline. Its
// pipeline placement (parent, renderable, processed) and its encode linkage
// (EncodedID, hashes) advance independently.
type Object struct {
	ID         int64
	FeedID     int64
	IdentityID int64
	DeviceID   int64
	ParentID   int64
	AppID      int64
	Timestamp  time.Time

	UniversalHash      ContentHash
	ShortUniversalHash int64

	Type string
	JSON string
	Raw  []byte

	LastModified time.Time

	// EncodedID links to the ciphertext once the encoder has run. Zero
	// means not yet encoded; the encoder's work queue is exactly the set of
	// objects with a zero EncodedID.
	EncodedID int64

	Deleted    bool
	Renderable bool
	Processed  bool
}

// SequenceRecord is the transmission log: the sequence number assigned to
// one recipient of one outbound encoded message. One row per recipient of a
// fan-out.
type SequenceRecord struct {
	ID             int64
	EncodedID      int64
	RecipientID    int64
	SequenceNumber int64
}

// MissingMessage is a detected hole in a device's sequence numbering,
// cleared once that number is actually received.
type MissingMessage struct {
	ID             int64
	DeviceID       int64
	SequenceNumber int64
}
