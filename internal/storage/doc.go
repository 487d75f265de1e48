// Package storage keeps downloaded firmware in a gocloud.dev blob bucket.
//
// Each entry gets its own prefix, addressed by section and version:
//
//	{bucket}/Retail_Firmwares/4.91/PS3UPDAT.PUP   (payload)
//	{bucket}/Retail_Firmwares/4.91/md5.txt        (checksum sidecar)
//
// A plain directory path opens a fileblob bucket rooted there; anything with
// a URL scheme (file://, mem://, s3://, gs://) goes through blob.OpenBucket.
//
// Payloads are written through a PayloadWriter. Commit publishes the object;
// Abort cancels the underlying blob write so a partial payload is never
// visible.
package storage
