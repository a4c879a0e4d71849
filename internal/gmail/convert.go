package gmail

import (
	"strconv"

	gmailapi "google.golang.org/api/gmail/v1"

	"mailinchat/backend/internal/domain"
)

func toRawMessage(msg *gmailapi.Message) *domain.RawMessage {
	if msg == nil {
		return &domain.RawMessage{}
	}

	raw := &domain.RawMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     append([]string(nil), msg.LabelIds...),
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
		Payload:      convertPart(msg.Payload),
	}
	if msg.HistoryId != 0 {
		raw.HistoryID = strconv.FormatUint(msg.HistoryId, 10)
	}
	return raw
}

func convertPart(part *gmailapi.MessagePart) *domain.RawPart {
	if part == nil {
		return nil
	}

	raw := &domain.RawPart{
		PartID:   part.PartId,
		MimeType: part.MimeType,
		Filename: part.Filename,
	}

	if len(part.Headers) > 0 {
		raw.Headers = make([]domain.Header, 0, len(part.Headers))
		for _, h := range part.Headers {
			if h == nil {
				continue
			}
			raw.Headers = append(raw.Headers, domain.Header{Name: h.Name, Value: h.Value})
		}
	}

	if part.Body != nil {
		raw.Body = &domain.PartBody{
			Data:         part.Body.Data,
			Size:         part.Body.Size,
			AttachmentID: part.Body.AttachmentId,
		}
	}

	for _, child := range part.Parts {
		if converted := convertPart(child); converted != nil {
			raw.Parts = append(raw.Parts, converted)
		}
	}

	return raw
}
