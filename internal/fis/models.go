// Package fis implements file ingest: decrypting the upload metadata and
// secret envelopes a submitter's encryption client seals against this
// service's Crypt4GH keypair, depositing the wrapped key with the key
// store, and emitting FileUploadValidationSuccess for each ingested file.
// It also runs the interrogation state machine that tracks a file from
// inbox arrival through pass/fail, independent of which ingest shape
// produced it.
package fis

import "time"

// FileUploadState is a FileUnderInterrogation's lifecycle position.
type FileUploadState string

const (
	StateInit             FileUploadState = "init"
	StateInbox            FileUploadState = "inbox"
	StateInterrogated     FileUploadState = "interrogated"
	StateFailed           FileUploadState = "failed"
	StateAwaitingArchival FileUploadState = "awaiting_archival"
	StateArchived         FileUploadState = "archived"
	StateCancelled        FileUploadState = "cancelled"
)

// LegacyUploadMetadata is the decrypted payload of a `/legacy/ingest` call:
// the wrapped session key travels inline with the rest of the metadata.
type LegacyUploadMetadata struct {
	FileID               string   `json:"file_id"`
	ObjectID             string   `json:"object_id"`
	FileSecret           []byte   `json:"file_secret"`
	PartSize             int64    `json:"part_size"`
	EncryptedSize        int64    `json:"encrypted_size"`
	DecryptedSize        int64    `json:"decrypted_size"`
	EncryptedPartsMD5    []string `json:"encrypted_parts_md5"`
	EncryptedPartsSHA256 []string `json:"encrypted_parts_sha256"`
	DecryptedSHA256      string   `json:"decrypted_sha256"`
	StorageAlias         string   `json:"storage_alias"`
}

// UploadMetadata is the decrypted payload of a `/federated/ingest_metadata`
// call: the secret travels separately via `/federated/ingest_secret`,
// correlated by the SecretID that call returned, so no key material
// appears here.
type UploadMetadata struct {
	FileID               string   `json:"file_id"`
	ObjectID             string   `json:"object_id"`
	SecretID             string   `json:"secret_id"`
	PartSize             int64    `json:"part_size"`
	EncryptedSize        int64    `json:"encrypted_size"`
	DecryptedSize        int64    `json:"decrypted_size"`
	EncryptedPartsMD5    []string `json:"encrypted_parts_md5"`
	EncryptedPartsSHA256 []string `json:"encrypted_parts_sha256"`
	DecryptedSHA256      string   `json:"decrypted_sha256"`
	StorageAlias         string   `json:"storage_alias"`
}

// FileIDRecord marks that upload_metadata for a file_id has already been
// processed, guarding populate_by_event against duplicate ingests.
type FileIDRecord struct {
	FileID string `bson:"_id"`
}

// DocumentID satisfies dao.Identifiable.
func (r *FileIDRecord) DocumentID() string { return r.FileID }

// FileUnderInterrogation is the per-file record the enhanced (federated)
// ingest variant keeps from inbox arrival through a terminal state.
type FileUnderInterrogation struct {
	ID           string          `bson:"_id"`
	DataHub      string          `bson:"data_hub"`
	StorageAlias string          `bson:"storage_alias"`
	State        FileUploadState `bson:"state"`
	StateUpdated time.Time       `bson:"state_updated"`
	Interrogated bool            `bson:"interrogated"`
	CanRemove    bool            `bson:"can_remove"`
}

// DocumentID satisfies dao.Identifiable.
func (f *FileUnderInterrogation) DocumentID() string { return f.ID }

// BaseFileInformation is the projection returned by
// get_files_not_yet_interrogated.
type BaseFileInformation struct {
	FileID       string `json:"file_id"`
	DataHub      string `json:"data_hub"`
	StorageAlias string `json:"storage_alias"`
}

// InterrogationReport is the pass/fail verdict a data hub's interrogation
// job POSTs back for one file.
type InterrogationReport struct {
	FileID               string    `json:"file_id"`
	StorageAlias         string    `json:"storage_alias"`
	InterrogatedAt       time.Time `json:"interrogated_at"`
	Passed               bool      `json:"passed"`
	Secret               []byte    `json:"secret,omitempty"`
	EncryptedPartsMD5    []string  `json:"encrypted_parts_md5,omitempty"`
	EncryptedPartsSHA256 []string  `json:"encrypted_parts_sha256,omitempty"`
	Reason               string    `json:"reason,omitempty"`
}

// fileUploadValidationSuccessEvent is the wire payload of
// FileUploadValidationSuccess, keyed by file_id.
type fileUploadValidationSuccessEvent struct {
	FileID               string   `json:"file_id"`
	ObjectID             string   `json:"object_id"`
	SecretID             string   `json:"secret_id"`
	PartSize             int64    `json:"part_size"`
	EncryptedSize        int64    `json:"encrypted_size"`
	DecryptedSize        int64    `json:"decrypted_size"`
	EncryptedPartsMD5    []string `json:"encrypted_parts_md5"`
	EncryptedPartsSHA256 []string `json:"encrypted_parts_sha256"`
	DecryptedSHA256      string   `json:"decrypted_sha256"`
	StorageAlias         string   `json:"storage_alias"`
}

// interrogationSuccessEvent is the wire payload the enhanced interrogation
// path emits once a passing report's secret has been deposited.
type interrogationSuccessEvent struct {
	FileID               string    `json:"file_id"`
	SecretID             string    `json:"secret_id"`
	StorageAlias         string    `json:"storage_alias"`
	InterrogatedAt       time.Time `json:"interrogated_at"`
	EncryptedPartsMD5    []string  `json:"encrypted_parts_md5"`
	EncryptedPartsSHA256 []string  `json:"encrypted_parts_sha256"`
}

// interrogationFailedEvent is the wire payload emitted for a failing report.
type interrogationFailedEvent struct {
	FileID         string    `json:"file_id"`
	StorageAlias   string    `json:"storage_alias"`
	InterrogatedAt time.Time `json:"interrogated_at"`
	Reason         string    `json:"reason"`
}
