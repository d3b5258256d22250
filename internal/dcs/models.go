// Package dcs implements the download controller: the DRS object
// registry, outbox staging requests, envelope serving and outbox TTL
// cleanup. It is the terminal stage of the pipeline — the only one
// exposed directly to data-access clients.
package dcs

import "time"

// DrsObject is the registry's authoritative record of a file available
// for download: the projection IFRS's FileInternallyRegistered hands
// over, plus the object's last access time for outbox eviction.
type DrsObject struct {
	FileID          string    `bson:"_id"`
	ObjectID        string    `bson:"object_id"`
	SecretID        string    `bson:"secret_id"`
	DecryptedSHA256 string    `bson:"decrypted_sha256"`
	DecryptedSize   int64     `bson:"decrypted_size"`
	EncryptedSize   int64     `bson:"encrypted_size"`
	StorageAlias    string    `bson:"storage_alias"`
	CreationDate    time.Time `bson:"creation_date"`
	LastAccessed    time.Time `bson:"last_accessed"`
}

// DocumentID satisfies dao.Document.
func (d *DrsObject) DocumentID() string { return d.FileID }

// fileInternallyRegisteredEvent is the wire shape IFRS publishes after
// archiving a file. DCS's DrsObject is keyed by the accession string,
// DCS's own notion of "file_id", so Accession decodes into
// DrsObject.FileID.
type fileInternallyRegisteredEvent struct {
	Accession       string `json:"accession"`
	ObjectID        string `json:"object_id"`
	StorageAlias    string `json:"storage_alias"`
	SecretID        string `json:"secret_id"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	DecryptedSize   int64  `json:"decrypted_size"`
	EncryptedSize   int64  `json:"encrypted_size"`
}

// fileDeletionRequestedEvent carries just the accession to delete.
type fileDeletionRequestedEvent struct {
	Accession string `json:"accession"`
}

// nonStagedFileRequestedEvent is published to ask IFRS to copy a file
// from permanent storage into an outbox bucket; the field names mirror
// exactly what internal/ifrs decodes on its NonStagedRequestTopic.
type nonStagedFileRequestedEvent struct {
	Accession        string `json:"accession"`
	DecryptedSHA256  string `json:"decrypted_sha256"`
	DownloadObjectID string `json:"download_object_id"`
	DownloadBucketID string `json:"download_bucket_id"`
}

// downloadServedEvent records that a download was actually handed out,
// for audit purposes.
type downloadServedEvent struct {
	Accession       string `json:"accession"`
	StorageAlias    string `json:"storage_alias"`
	DecryptedSHA256 string `json:"decrypted_sha256"`
	TargetObjectID  string `json:"target_object_id"`
	TargetBucketID  string `json:"target_bucket_id"`
}

// fileRegisteredForDownloadEvent announces a new DRS object exists.
type fileRegisteredForDownloadEvent struct {
	Accession       string    `json:"accession"`
	DecryptedSHA256 string    `json:"decrypted_sha256"`
	UploadDate      time.Time `json:"upload_date"`
	DrsURI          string    `json:"drs_uri"`
}

// fileDeletedEvent announces a file has been fully removed.
type fileDeletedEvent struct {
	Accession string `json:"accession"`
}
