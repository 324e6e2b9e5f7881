package upload

// S3API exposes s3API for testing.
type S3API = s3API

// NewS3UploaderWithClient exposes newS3Uploader for testing.
var NewS3UploaderWithClient = newS3Uploader

// NewGCSUploaderWithWriter exposes newGCSUploader for testing.
var NewGCSUploaderWithWriter = newGCSUploader
