package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tag_manager/models"
	"tag_manager/tagerr"
)

const (
	charset    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength = 6
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrLinkExpired  = errors.New("link has expired")
)

// LinkService stores the short links the CLI tags through link_tags.
type LinkService struct {
	db  *gorm.DB
	log zerolog.Logger
	now func() time.Time
}

func NewLinkService(db *gorm.DB, log zerolog.Logger) *LinkService {
	return &LinkService{db: db, log: log, now: time.Now}
}

// Create stores originalURL under customCode, or under a random code when
// customCode is empty.
func (s *LinkService) Create(ctx context.Context, originalURL, customCode string, expiresIn *time.Duration) (*models.Link, error) {
	if originalURL == "" {
		return nil, tagerr.NewValidation("create link", errors.New("original URL cannot be empty"))
	}

	shortCode := customCode
	if shortCode == "" {
		var err error
		shortCode, err = generateShortCode()
		if err != nil {
			return nil, err
		}
	}

	link := models.Link{
		OriginalURL: originalURL,
		ShortCode:   shortCode,
		CreatedAt:   s.now(),
	}
	if expiresIn != nil {
		expiresAt := link.CreatedAt.Add(*expiresIn)
		link.ExpiresAt = &expiresAt
	}

	err := s.db.WithContext(ctx).Omit("Tags").Create(&link).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, tagerr.NewUniqueness("create link", fmt.Errorf("short code %q already exists", shortCode))
	}
	if err != nil {
		return nil, tagerr.NewStorage("create link", err)
	}
	s.log.Debug().Uint("link_id", link.ID).Str("short_code", shortCode).Msg("link created")
	return &link, nil
}

// ByShortCode returns the link stored under code. Expired links are
// reported as ErrLinkExpired.
func (s *LinkService) ByShortCode(ctx context.Context, code string) (*models.Link, error) {
	var link models.Link
	err := s.db.WithContext(ctx).Where("short_code = ?", code).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLinkNotFound
	}
	if err != nil {
		return nil, tagerr.NewStorage("find link", err)
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(s.now()) {
		return nil, ErrLinkExpired
	}
	return &link, nil
}

// List returns one page of links, newest first, and the total count.
func (s *LinkService) List(ctx context.Context, page, pageSize int) ([]models.Link, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Link{}).Count(&total).Error; err != nil {
		return nil, 0, tagerr.NewStorage("count links", err)
	}
	var links []models.Link
	err := db.Limit(pageSize).Offset((page - 1) * pageSize).Order("created_at desc, id desc").Find(&links).Error
	if err != nil {
		return nil, 0, tagerr.NewStorage("list links", err)
	}
	return links, total, nil
}

func generateShortCode() (string, error) {
	code := make([]byte, codeLength)
	charsetLength := big.NewInt(int64(len(charset)))

	for i := 0; i < codeLength; i++ {
		randomIndex, err := rand.Int(rand.Reader, charsetLength)
		if err != nil {
			return "", err
		}
		code[i] = charset[randomIndex.Int64()]
	}
	return string(code), nil
}
