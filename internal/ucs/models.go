// Package ucs implements the upload controller: boxes group related file
// uploads, a FileUpload tracks one multipart upload's metadata, and
// S3UploadDetails tracks the storage-side handle for it. A box can be
// locked once every FileUpload it holds is completed, after which no
// further uploads may be created, completed, or removed.
package ucs

import "time"

// FileUploadBox groups related file uploads under one storage alias. Once
// locked, its membership is frozen: no FileUpload may be created, removed,
// or completed within it.
type FileUploadBox struct {
	ID           string `bson:"_id"`
	StorageAlias string `bson:"storage_alias"`
	Locked       bool   `bson:"locked"`
	FileCount    int    `bson:"file_count"`
	Size         int64  `bson:"size"`
}

// DocumentID satisfies dao.Identifiable.
func (b *FileUploadBox) DocumentID() string { return b.ID }

// FileUpload is one file's upload record within a box, identified by a
// server-chosen UUID and a caller-supplied alias unique within the box.
type FileUpload struct {
	ID        string `bson:"_id"`
	BoxID     string `bson:"box_id"`
	Alias     string `bson:"alias"`
	Size      int64  `bson:"size"`
	Checksum  string `bson:"checksum"`
	Completed bool   `bson:"completed"`
}

// DocumentID satisfies dao.Identifiable.
func (f *FileUpload) DocumentID() string { return f.ID }

// S3UploadDetails is the storage-side handle for one FileUpload's
// multipart upload, keyed by file_id (the FileUpload's ID and the object
// key in the inbox bucket are the same value).
type S3UploadDetails struct {
	FileID       string     `bson:"_id"`
	StorageAlias string     `bson:"storage_alias"`
	S3UploadID   string     `bson:"s3_upload_id"`
	Initiated    time.Time  `bson:"initiated"`
	Completed    *time.Time `bson:"completed,omitempty"`
}

// DocumentID satisfies dao.Identifiable.
func (s *S3UploadDetails) DocumentID() string { return s.FileID }
