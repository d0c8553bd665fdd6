package media

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const avatarSize = 200

// AvatarStore keeps avatar images on disk under a single directory. Images
// are normalized to a 200x200 PNG on write and addressed by an opaque key.
type AvatarStore struct {
	dir string
}

func NewAvatarStore(dir string) *AvatarStore {
	return &AvatarStore{dir: dir}
}

// Save decodes the uploaded image, crops it to a centered square scaled to
// 200px and stores it under a fresh random key.
func (s *AvatarStore) Save(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)
	key := uuid.NewString() + ".png"
	if err := imaging.Save(resized, filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return key, nil
}

// Remove deletes the stored image for the key.
func (s *AvatarStore) Remove(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Path resolves a key to its on-disk location, rejecting anything that could
// escape the storage directory.
func (s *AvatarStore) Path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid avatar key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
