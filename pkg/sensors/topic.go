package sensors

import (
	"fmt"
	"strings"
)

const topicSeparator = "/"

// Topic is the identity carried by a transport subject: family/deviceId/feature.
// It is a value type; copies never alias.
type Topic struct {
	Family   string `json:"family"`
	DeviceID string `json:"deviceId"`
	Feature  string `json:"feature"`
}

// ParseTopic splits a subject on "/". The first segment is the family and the last is the
// feature. Every segment in between forms the device id, joined back with "/", so that
// String always reproduces the subject exactly. Fewer than three segments, or any empty
// segment, is ErrMalformedTopic.
func ParseTopic(subject string) (Topic, error) {
	segments := strings.Split(subject, topicSeparator)
	if len(segments) < 3 {
		return Topic{}, fmt.Errorf("%w: %q has %d segment(s), want family/deviceId/feature", ErrMalformedTopic, subject, len(segments))
	}
	for i, s := range segments {
		if s == "" {
			return Topic{}, fmt.Errorf("%w: %q has an empty segment at position %d", ErrMalformedTopic, subject, i)
		}
	}

	last := len(segments) - 1
	return Topic{
		Family:   segments[0],
		DeviceID: strings.Join(segments[1:last], topicSeparator),
		Feature:  segments[last],
	}, nil
}

// Validate checks a Topic that was not built by ParseTopic, e.g. one decoded from an
// envelope's topic object.
func (t Topic) Validate() error {
	if t.Family == "" || t.DeviceID == "" || t.Feature == "" {
		return fmt.Errorf("%w: family, deviceId and feature are all required, got %+v", ErrMalformedTopic, t)
	}
	if strings.Contains(t.Family, topicSeparator) || strings.Contains(t.Feature, topicSeparator) {
		return fmt.Errorf("%w: family and feature must be single segments, got %+v", ErrMalformedTopic, t)
	}
	return nil
}

// String renders the canonical family/deviceId/feature subject.
func (t Topic) String() string {
	return t.Family + topicSeparator + t.DeviceID + topicSeparator + t.Feature
}
