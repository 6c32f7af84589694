// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud. This file covers Google Cloud Storage, used to archive the
// output of asynchronous merge jobs.
//
// Structs:
//   - GCSObject: a bucket/object pair with its MIME type.
//   - GCSObjectStore: ObjectStore backed by a *storage.Client.
package cloud

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GetGCSObjectName is the workflow context key of the archived GCSObject.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSObject identifies a stored object.
type GCSObject struct {
	Bucket   string
	Name     string
	MIMEType string
}

// URI returns the gs:// form of the object.
func (o *GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ObjectStore writes a stream to an object.
type ObjectStore interface {
	Upload(ctx context.Context, object *GCSObject, r io.Reader) (int64, error)
}

// GCSObjectStore is the Cloud Storage ObjectStore.
type GCSObjectStore struct {
	client *storage.Client
}

func NewGCSObjectStore(client *storage.Client) *GCSObjectStore {
	return &GCSObjectStore{client: client}
}

// Upload streams r into the object. The object only exists once the writer
// is closed without error.
func (s *GCSObjectStore) Upload(ctx context.Context, object *GCSObject, r io.Reader) (int64, error) {
	writer := s.client.Bucket(object.Bucket).Object(object.Name).NewWriter(ctx)
	writer.ContentType = object.MIMEType
	written, err := io.Copy(writer, r)
	if err != nil {
		_ = writer.Close()
		return written, fmt.Errorf("copy to %s: %w", object.URI(), err)
	}
	if err := writer.Close(); err != nil {
		return written, fmt.Errorf("finalize %s: %w", object.URI(), err)
	}
	return written, nil
}
