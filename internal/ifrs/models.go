// Package ifrs implements the internal file registry: archival of
// interrogated uploads into permanent storage, staging into per-consumer
// outbox buckets, deletion, and the two-sided accession/file_id join that
// lets an accession and its upload arrive in either order.
package ifrs

import "time"

// FileMetadata is the authoritative record of one archived file, keyed by
// its internal file id; the accession it was assigned is looked up by
// field since an upload's file id is known before its accession is.
type FileMetadata struct {
	FileID          string    `bson:"_id"`
	Accession       string    `bson:"accession"`
	ObjectID        string    `bson:"object_id"`
	StorageAlias    string    `bson:"storage_alias"`
	BucketID        string    `bson:"bucket_id"`
	SecretID        string    `bson:"secret_id"`
	DecryptedSHA256 string    `bson:"decrypted_sha256"`
	DecryptedSize   int64     `bson:"decrypted_size"`
	EncryptedSize   int64     `bson:"encrypted_size"`
	PartSize        int64     `bson:"part_size"`
	PartsMD5        []string  `bson:"parts_md5"`
	PartsSHA256     []string  `bson:"parts_sha256"`
	ArchiveDate     time.Time `bson:"archive_date"`
}

// DocumentID satisfies dao.Identifiable.
func (f *FileMetadata) DocumentID() string { return f.FileID }

// equalContent reports whether two FileMetadata rows describe the same
// archived bytes, used to detect a harmless duplicate registration versus
// a conflicting re-registration under the same id.
func (f *FileMetadata) equalContent(other *FileMetadata) bool {
	if f.FileID != other.FileID || f.ObjectID != other.ObjectID ||
		f.StorageAlias != other.StorageAlias ||
		f.SecretID != other.SecretID || f.DecryptedSHA256 != other.DecryptedSHA256 ||
		f.DecryptedSize != other.DecryptedSize || f.EncryptedSize != other.EncryptedSize ||
		f.PartSize != other.PartSize || len(f.PartsMD5) != len(other.PartsMD5) ||
		len(f.PartsSHA256) != len(other.PartsSHA256) {
		return false
	}
	for i := range f.PartsMD5 {
		if f.PartsMD5[i] != other.PartsMD5[i] {
			return false
		}
	}
	for i := range f.PartsSHA256 {
		if f.PartsSHA256[i] != other.PartsSHA256[i] {
			return false
		}
	}
	return true
}

// PendingFileUpload holds a validated upload's metadata while its
// accession has not yet been assigned, keyed by file id.
type PendingFileUpload struct {
	FileID          string   `bson:"_id"`
	ObjectID        string   `bson:"object_id"`
	StorageAlias    string   `bson:"storage_alias"`
	BucketID        string   `bson:"bucket_id"`
	SecretID        string   `bson:"secret_id"`
	DecryptedSHA256 string   `bson:"decrypted_sha256"`
	DecryptedSize   int64    `bson:"decrypted_size"`
	EncryptedSize   int64    `bson:"encrypted_size"`
	PartSize        int64    `bson:"part_size"`
	PartsMD5        []string `bson:"parts_md5"`
	PartsSHA256     []string `bson:"parts_sha256"`
}

// DocumentID satisfies dao.Identifiable.
func (p *PendingFileUpload) DocumentID() string { return p.FileID }

// toFileMetadata joins a pending upload with the accession that resolved it.
func (p *PendingFileUpload) toFileMetadata(accession string) *FileMetadata {
	return &FileMetadata{
		FileID:          p.FileID,
		Accession:       accession,
		ObjectID:        p.ObjectID,
		StorageAlias:    p.StorageAlias,
		BucketID:        p.BucketID,
		SecretID:        p.SecretID,
		DecryptedSHA256: p.DecryptedSHA256,
		DecryptedSize:   p.DecryptedSize,
		EncryptedSize:   p.EncryptedSize,
		PartSize:        p.PartSize,
		PartsMD5:        p.PartsMD5,
		PartsSHA256:     p.PartsSHA256,
	}
}

// FileIDToAccession holds an accession that arrived before its matching
// upload, keyed by file id so handle_file_upload can find it later.
type FileIDToAccession struct {
	FileID    string `bson:"_id"`
	Accession string `bson:"accession"`
}

// DocumentID satisfies dao.Identifiable.
func (a *FileIDToAccession) DocumentID() string { return a.FileID }

// fileUploadValidationSuccessEvent is the wire payload FIS publishes once
// both halves of an upload's interrogation have cleared.
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

// AccessionMap is the payload of an incoming accession assignment batch:
// accession -> file_id for every file a metadata submission named.
type AccessionMap map[string]string

// fileInternallyRegisteredEvent is the wire payload published once a file
// has been copied into permanent storage and its metadata persisted.
type fileInternallyRegisteredEvent struct {
	Accession       string   `json:"accession"`
	FileID          string   `json:"file_id"`
	ObjectID        string   `json:"object_id"`
	StorageAlias    string   `json:"storage_alias"`
	BucketID        string   `json:"bucket_id"`
	SecretID        string   `json:"secret_id"`
	DecryptedSHA256 string   `json:"decrypted_sha256"`
	DecryptedSize   int64    `json:"decrypted_size"`
	EncryptedSize   int64    `json:"encrypted_size"`
	PartSize        int64    `json:"part_size"`
	PartsMD5        []string `json:"parts_md5"`
	PartsSHA256     []string `json:"parts_sha256"`
}

// fileDeletedEvent is the wire payload published once a file has been
// removed from permanent storage and the registry.
type fileDeletedEvent struct {
	FileID string `json:"file_id"`
}

// nonStagedFileRequestedEvent is the inbound payload DCS emits when a
// download is requested for a file not currently in the outbox.
type nonStagedFileRequestedEvent struct {
	Accession        string `json:"accession"`
	DecryptedSHA256  string `json:"decrypted_sha256"`
	DownloadObjectID string `json:"download_object_id"`
	DownloadBucketID string `json:"download_bucket_id"`
	CorrelationID    string `json:"correlation_id"`
}
