package models

import "time"

// TagUnanalyzed is the sentinel tag assigned when ML analysis did not
// succeed. It never carries a confidence score and is hidden from the
// distinct tag listing.
const TagUnanalyzed = "unanalyzed"

type ImageAsset struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	StorageKey   string     `json:"filename" gorm:"not null;uniqueIndex"`
	OriginalName string     `json:"originalName" gorm:"not null;index"`
	FileSize     int64      `json:"fileSize" gorm:"not null"`
	MimeType     string     `json:"mimeType" gorm:"not null"`
	CreatedAt    time.Time  `json:"uploadDate" gorm:"index"`
	UpdatedAt    time.Time  `json:"-"`
	Tags         []ImageTag `json:"-" gorm:"foreignKey:ImageAssetID;constraint:OnDelete:CASCADE"`
}

// ImageTag is one label attached to an asset. Confidence is set only for
// labels produced by a successful analysis, which keeps confidence keys a
// subset of the tag set by construction.
type ImageTag struct {
	ID           uint     `json:"-" gorm:"primaryKey"`
	ImageAssetID uint     `json:"-" gorm:"not null;index:idx_image_tags_asset_label,unique"`
	Label        string   `json:"label" gorm:"not null;index:idx_image_tags_asset_label,unique"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// TagLabels returns the labels of the asset's tags in stored order.
func (a *ImageAsset) TagLabels() []string {
	labels := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		labels = append(labels, t.Label)
	}
	return labels
}

// ConfidenceMap returns label -> score for tags that carry a confidence.
func (a *ImageAsset) ConfidenceMap() map[string]float64 {
	conf := make(map[string]float64)
	for _, t := range a.Tags {
		if t.Confidence != nil {
			conf[t.Label] = *t.Confidence
		}
	}
	return conf
}
