package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const imageFolder = "location"

// ObjectLister lists object attributes under a prefix.
type ObjectLister interface {
	List(ctx context.Context, prefix string) ([]*gcs.ObjectAttrs, error)
}

type bucketLister struct {
	bucket *gcs.BucketHandle
}

// NewBucketLister lists objects of a Cloud Storage bucket.
func NewBucketLister(bucket *gcs.BucketHandle) ObjectLister {
	return &bucketLister{bucket: bucket}
}

func (b *bucketLister) List(ctx context.Context, prefix string) ([]*gcs.ObjectAttrs, error) {
	it := b.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []*gcs.ObjectAttrs
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, attrs)
	}
	return out, nil
}

// ImageService resolves destination photos stored under location/{name}/.
type ImageService struct {
	objects ObjectLister
}

func NewImageService(objects ObjectLister) *ImageService {
	return &ImageService{objects: objects}
}

// FirstImageURL returns the media link of the first photo of the
// destination, or "" when it has none.
func (s *ImageService) FirstImageURL(ctx context.Context, destinationName string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", imageFolder, destinationName)
	objects, err := s.objects.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to list images of %s: %w", destinationName, err)
	}

	images := make([]*gcs.ObjectAttrs, 0, len(objects))
	for _, o := range objects {
		// Folder placeholders end with a slash.
		if strings.HasSuffix(o.Name, "/") {
			continue
		}
		images = append(images, o)
	}
	if len(images) == 0 {
		return "", nil
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images[0].MediaLink, nil
}
