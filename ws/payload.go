package ws

import (
	"fmt"
	"strings"
	"unicode/utf8"

	chaterrors "merry-chat/errors"
	"merry-chat/models"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// normalizePayload checks a sendMessage payload and fills the type tags the
// client left out. A payload needs a room id and at least one content item.
func normalizePayload(p models.SendPayload, maxLength int) (models.SendPayload, error) {
	p.RoomID = strings.TrimSpace(p.RoomID)
	p.ImageURLs = lo.Compact(lo.Map(p.ImageURLs, func(u string, _ int) string {
		return strings.TrimSpace(u)
	}))

	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("%w: %v", chaterrors.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.Content) == "" && len(p.ImageURLs) == 0 {
		return p, fmt.Errorf("%w: message has neither text nor images", chaterrors.ErrInvalidPayload)
	}
	if maxLength > 0 && utf8.RuneCountInString(p.Content) > maxLength {
		return p, fmt.Errorf("%w: message too long (max %d characters)", chaterrors.ErrInvalidPayload, maxLength)
	}

	if len(p.MessageType) == 0 {
		if strings.TrimSpace(p.Content) != "" {
			p.MessageType = append(p.MessageType, models.TypeText)
		}
		if len(p.ImageURLs) > 0 {
			p.MessageType = append(p.MessageType, models.TypeImage)
		}
	}
	p.MessageType = lo.Uniq(p.MessageType)
	if p.ImageURLs == nil {
		p.ImageURLs = []string{}
	}
	return p, nil
}
