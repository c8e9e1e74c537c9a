// Package classify filters detections against a compliance profile's risk
// threshold and stamps the surviving ones with the profile's framework tags.
package classify

import (
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/detect"
	"github.com/veilhq/veil/internal/pattern"
	"github.com/veilhq/veil/internal/profile"
)

// Classifier applies profile risk policy to raw detections.
type Classifier struct {
	logger *zap.Logger
}

// New creates a classifier.
func New(logger *zap.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Filter drops detections whose risk level falls below the profile's
// threshold and narrows compliance tags to those the profile cares about.
// Dropped detections are discarded whole; their matched text is not logged
// or retained anywhere.
func (c *Classifier) Filter(detections []detect.Detection, prof *profile.Profile) []detect.Detection {
	threshold := pattern.RiskLevel(prof.RiskThreshold)
	kept := make([]detect.Detection, 0, len(detections))
	dropped := 0

	for _, d := range detections {
		if d.RiskLevel.Rank() < threshold.Rank() {
			dropped++
			continue
		}
		d.ComplianceTags = relevantTags(d.ComplianceTags, prof.ComplianceTags)
		kept = append(kept, d)
	}

	if dropped > 0 {
		c.logger.Debug("Detections below risk threshold dropped",
			zap.String("profile", prof.Name),
			zap.String("threshold", prof.RiskThreshold),
			zap.Int("dropped", dropped),
			zap.Int("kept", len(kept)),
		)
	}
	return kept
}

// relevantTags intersects a detection's tags with the profile's tags. A
// profile with no tags keeps the detection's full tag set.
func relevantTags(detectionTags, profileTags []string) []string {
	if len(profileTags) == 0 {
		return detectionTags
	}
	want := make(map[string]struct{}, len(profileTags))
	for _, t := range profileTags {
		want[t] = struct{}{}
	}
	var out []string
	for _, t := range detectionTags {
		if _, ok := want[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
