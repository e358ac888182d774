package domain

const MaxDocumentIDLen = 128

// DocumentID is opaque to the relay; it is only a room key. The
// document itself lives in the persistence layer, outside this service.
type DocumentID string
