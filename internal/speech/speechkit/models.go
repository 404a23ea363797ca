package speechkit

// recognitionRequest starts an async long-audio recognition
type recognitionRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  audioSource       `json:"audio"`
}

type recognitionConfig struct {
	Specification specification `json:"specification"`
}

type specification struct {
	LanguageCode      string `json:"languageCode"`
	Model             string `json:"model"`
	AudioEncoding     string `json:"audioEncoding"`
	SampleRateHertz   int    `json:"sampleRateHertz,omitempty"`
	AudioChannelCount int    `json:"audioChannelCount,omitempty"`
	ProfanityFilter   bool   `json:"profanityFilter"`
	LiteratureText    bool   `json:"literatureText"`
}

type audioSource struct {
	URI string `json:"uri"`
}

// operation is a Yandex Cloud long-running operation
type operation struct {
	ID       string          `json:"id"`
	Done     bool            `json:"done"`
	Response *recognition    `json:"response,omitempty"`
	Error    *operationError `json:"error,omitempty"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type recognition struct {
	Chunks []chunk `json:"chunks"`
}

type chunk struct {
	Alternatives []alternative `json:"alternatives"`
	ChannelTag   string        `json:"channelTag,omitempty"`
}

type alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}
