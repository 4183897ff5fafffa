package models

// TagKeyword suggests its tag when the keyword, or its stem when one is
// set, appears in a piece of content.
type TagKeyword struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	TagID   uint   `json:"tag_id" gorm:"not null;index"`
	Tag     Tag    `json:"tag" gorm:"constraint:OnDelete:CASCADE"`
	Keyword string `json:"keyword" gorm:"size:30;not null"`
	Stem    string `json:"stem" gorm:"size:30"`
}

// TagRegex suggests its tag when the pattern matches a piece of content.
type TagRegex struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	TagID uint   `json:"tag_id" gorm:"not null;index"`
	Tag   Tag    `json:"tag" gorm:"constraint:OnDelete:CASCADE"`
	Name  string `json:"name" gorm:"size:30;not null"`
	Regex string `json:"regex" gorm:"size:250;not null"`
}

func (TagRegex) TableName() string {
	return "tag_regexes"
}
