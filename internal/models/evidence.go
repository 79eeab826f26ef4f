package models

type EvidenceType string

const (
	EvidencePhoto      EvidenceType = "photo"
	EvidenceQRScan     EvidenceType = "qr-scan"
	EvidenceQuizResult EvidenceType = "quiz-result"
	EvidenceNone       EvidenceType = "none"
)

// Evidence is a tagged union: Type selects which of the payload fields is set.
type Evidence struct {
	Type  EvidenceType   `json:"type" validate:"required,oneof=photo qr-scan quiz-result none" enum:"photo,qr-scan,quiz-result,none"`
	Photo *PhotoEvidence `json:"photo,omitempty" validate:"required_if=Type photo,excluded_unless=Type photo"`
	QR    *QRScanData    `json:"qr,omitempty" validate:"required_if=Type qr-scan,excluded_unless=Type qr-scan"`
	Quiz  *QuizResult    `json:"quiz,omitempty" validate:"required_if=Type quiz-result,excluded_unless=Type quiz-result"`
}

type PhotoEvidence struct {
	// DataURL carries an inline upload; URL a hosted image.
	DataURL string `json:"dataUrl,omitempty" validate:"required_without=URL"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
	Caption string `json:"caption,omitempty"`
}

type QRScanData struct {
	Payload   string   `json:"payload" validate:"required"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type QuizResult struct {
	QuizID string `json:"quizId" validate:"required"`
	Score  int    `json:"score" validate:"gte=0,ltefield=Total"`
	Total  int    `json:"total" validate:"gt=0"`
}

func (q QuizResult) Percentage() float64 {
	if q.Total <= 0 {
		return 0
	}
	return float64(q.Score) / float64(q.Total) * 100
}
