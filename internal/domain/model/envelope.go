package model

// IdentityHeader carries the caller identity from intake to delivery.
const IdentityHeader = "x-rh-identity"

// Envelope is the payload delivered to the next service after detection.
type Envelope struct {
	ID        string       `json:"id"`
	AIService string       `json:"ai_service"`
	Data      EnvelopeData `json:"data"`
}

// EnvelopeData carries the scored results of one job.
type EnvelopeData struct {
	AccountNumber string     `json:"account_number"`
	Results       Result     `json:"results"`
	FeatureList   []string   `json:"feature_list"`
	CommonData    CommonData `json:"common_data"`
}

// CommonData holds auxiliary report data. Charts stay empty until report
// generation exists.
type CommonData struct {
	Charts []any `json:"charts"`
}

// NewEnvelope builds an envelope. Nil slices are replaced with empty ones so
// the JSON always carries arrays.
func NewEnvelope(id, aiService, account string, results Result, features []string) Envelope {
	if results == nil {
		results = Result{}
	}
	if features == nil {
		features = []string{}
	}
	return Envelope{
		ID:        id,
		AIService: aiService,
		Data: EnvelopeData{
			AccountNumber: account,
			Results:       results,
			FeatureList:   features,
			CommonData:    CommonData{Charts: []any{}},
		},
	}
}
