package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/tagerr"
)

const (
	maxKeywordLength = 30
	maxRegexLength   = 250
)

// regexTimeout bounds a single match of a stored or selector pattern.
var regexTimeout = time.Second

// SuggestService proposes tags for free text using per-tag keywords and
// regular expressions.
type SuggestService struct {
	tags *repository.TagRepository
	log  zerolog.Logger
}

func NewSuggestService(tags *repository.TagRepository, log zerolog.Logger) *SuggestService {
	return &SuggestService{tags: tags, log: log}
}

// AddKeyword makes content containing keyword suggest tagName. When stem is
// set it is matched instead of the keyword.
func (s *SuggestService) AddKeyword(ctx context.Context, tagName, keyword, stem string) (*models.TagKeyword, error) {
	if keyword == "" {
		return nil, tagerr.NewValidation("add keyword", errors.New("keyword must not be empty"))
	}
	if utf8.RuneCountInString(keyword) > maxKeywordLength || utf8.RuneCountInString(stem) > maxKeywordLength {
		return nil, tagerr.NewValidation("add keyword", fmt.Errorf("keyword and stem are limited to %d characters", maxKeywordLength))
	}
	tag, err := s.tags.GetOrCreate(ctx, tagName)
	if err != nil {
		return nil, err
	}
	kw := &models.TagKeyword{TagID: tag.ID, Keyword: keyword, Stem: stem}
	if err := s.tags.DB().WithContext(ctx).Omit("Tag").Create(kw).Error; err != nil {
		return nil, tagerr.NewStorage("add keyword", err)
	}
	kw.Tag = *tag
	return kw, nil
}

// AddRegex makes content matching pattern suggest tagName. Use (?i) in the
// pattern for case-insensitive matching.
func (s *SuggestService) AddRegex(ctx context.Context, tagName, name, pattern string) (*models.TagRegex, error) {
	if err := ValidateRegex(pattern); err != nil {
		return nil, err
	}
	if name == "" || utf8.RuneCountInString(name) > maxKeywordLength {
		return nil, tagerr.NewValidation("add regex", fmt.Errorf("name must be 1 to %d characters", maxKeywordLength))
	}
	tag, err := s.tags.GetOrCreate(ctx, tagName)
	if err != nil {
		return nil, err
	}
	re := &models.TagRegex{TagID: tag.ID, Name: name, Regex: pattern}
	if err := s.tags.DB().WithContext(ctx).Omit("Tag").Create(re).Error; err != nil {
		return nil, tagerr.NewStorage("add regex", err)
	}
	re.Tag = *tag
	return re, nil
}

// ValidateRegex reports whether pattern is a usable regular expression.
func ValidateRegex(pattern string) error {
	if pattern == "" {
		return tagerr.NewValidation("regex", errors.New("please enter a valid regular expression"))
	}
	if utf8.RuneCountInString(pattern) > maxRegexLength {
		return tagerr.NewValidation("regex", fmt.Errorf("regular expressions are limited to %d characters", maxRegexLength))
	}
	if _, err := regexp2.Compile(pattern, regexp2.None); err != nil {
		return tagerr.NewValidation("regex", fmt.Errorf("please enter a valid regular expression: %w", err))
	}
	return nil
}

// Validate checks every stored regex and reports all invalid ones.
func (s *SuggestService) Validate(ctx context.Context) error {
	var regexes []models.TagRegex
	if err := s.tags.DB().WithContext(ctx).Order("id").Find(&regexes).Error; err != nil {
		return tagerr.NewStorage("load regexes", err)
	}
	var result *multierror.Error
	for _, r := range regexes {
		if err := ValidateRegex(r.Regex); err != nil {
			result = multierror.Append(result, fmt.Errorf("regex %d (%s): %w", r.ID, r.Name, err))
		}
	}
	return result.ErrorOrNil()
}

// Suggest returns the tags whose keywords or regexes match content, ordered
// by name. Stored regexes that no longer compile are skipped.
func (s *SuggestService) Suggest(ctx context.Context, content string) ([]models.Tag, error) {
	db := s.tags.DB().WithContext(ctx)

	var keywords []models.TagKeyword
	if err := db.Find(&keywords).Error; err != nil {
		return nil, tagerr.NewStorage("load keywords", err)
	}
	var regexes []models.TagRegex
	if err := db.Find(&regexes).Error; err != nil {
		return nil, tagerr.NewStorage("load regexes", err)
	}

	ids := make(map[uint]bool)
	for _, k := range keywords {
		needle := k.Keyword
		if k.Stem != "" {
			needle = k.Stem
		}
		if strings.Contains(content, needle) {
			ids[k.TagID] = true
		}
	}
	for _, r := range regexes {
		if ids[r.TagID] {
			continue
		}
		re, err := regexp2.Compile(r.Regex, regexp2.None)
		if err != nil {
			s.log.Warn().Err(err).Uint("regex_id", r.ID).Msg("skipping invalid regex")
			continue
		}
		re.MatchTimeout = regexTimeout
		ok, err := re.MatchString(content)
		if err != nil {
			s.log.Warn().Err(err).Uint("regex_id", r.ID).Msg("regex match failed")
			continue
		}
		if ok {
			ids[r.TagID] = true
		}
	}

	list := make([]uint, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	return s.tags.FindByIDs(ctx, list)
}
