package storage

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"lendingapp/utils"

	"github.com/spf13/afero"
)

var (
	ErrInvalidKey       = errors.New("invalid object key")
	ErrObjectNotFound   = errors.New("object not found")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Bucket - хранилище бинарных объектов с публичными ссылками
type Bucket interface {
	Upload(key string, r io.Reader) error
	PublicURL(key string) string
	Open(key, signature string) (afero.File, error)
}

// FSBucket хранит объекты в файловой системе afero.
// Публичная ссылка подписана HMAC, без подписи объект не отдается.
type FSBucket struct {
	fs         afero.Fs
	baseURL    string
	signingKey []byte
}

// NewFSBucket создает бакет в каталоге root на диске
func NewFSBucket(root, baseURL string, signingKey []byte) (*FSBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога хранилища: %w", err)
	}
	return NewBucket(afero.NewBasePathFs(afero.NewOsFs(), root), baseURL, signingKey), nil
}

// NewBucket создает бакет поверх произвольной файловой системы (в тестах MemMapFs)
func NewBucket(fs afero.Fs, baseURL string, signingKey []byte) *FSBucket {
	return &FSBucket{
		fs:         fs,
		baseURL:    strings.TrimRight(baseURL, "/"),
		signingKey: signingKey,
	}
}

// Upload записывает объект под ключом, перезаписывая существующий
func (b *FSBucket) Upload(key string, r io.Reader) error {
	clean, err := cleanKey(key)
	if err != nil {
		return err
	}

	if err := b.fs.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога %s: %w", path.Dir(clean), err)
	}
	if err := afero.WriteReader(b.fs, clean, r); err != nil {
		return fmt.Errorf("ошибка записи объекта %s: %w", clean, err)
	}
	return nil
}

// PublicURL возвращает подписанную ссылку на объект
func (b *FSBucket) PublicURL(key string) string {
	clean, err := cleanKey(key)
	if err != nil {
		return ""
	}
	return b.baseURL + "/files/" + clean + "?sig=" + url.QueryEscape(b.sign(clean))
}

// Open проверяет подпись и открывает объект на чтение
func (b *FSBucket) Open(key, signature string) (afero.File, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	if !utils.ValidateHMAC(clean, signature, b.signingKey) {
		return nil, ErrInvalidSignature
	}

	f, err := b.fs.Open(clean)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", clean, err)
	}
	return f, nil
}

func (b *FSBucket) sign(key string) string {
	return utils.GenerateHMAC(key, b.signingKey)
}

// cleanKey запрещает абсолютные пути и выход за пределы бакета
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return "", ErrInvalidKey
		}
	}
	return path.Clean(key), nil
}
