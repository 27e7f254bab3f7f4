package domain

// Direction is one of the eight compass directions used for Vastu placement
// advice. The model is constrained to this closed set.
type Direction string

const (
	North     Direction = "North"
	NorthEast Direction = "North-East"
	East      Direction = "East"
	SouthEast Direction = "South-East"
	South     Direction = "South"
	SouthWest Direction = "South-West"
	West      Direction = "West"
	NorthWest Direction = "North-West"
)

// Directions lists the valid compass directions in clockwise order.
var Directions = []Direction{North, NorthEast, East, SouthEast, South, SouthWest, West, NorthWest}

// HealthStatus is the model's overall verdict on the plant's condition.
type HealthStatus string

const (
	StatusHealthy        HealthStatus = "HEALTHY"
	StatusNeedsAttention HealthStatus = "NEEDS_ATTENTION"
	StatusSick           HealthStatus = "SICK"
)

type CareInstructions struct {
	Water       string `json:"water"`
	Sunlight    string `json:"sunlight"`
	Temperature string `json:"temperature"`
	Soil        string `json:"soil"`
	Fertilizer  string `json:"fertilizer"`
	Pruning     string `json:"pruning,omitempty"`
}

type VastuDetails struct {
	BestDirections  []Direction `json:"bestDirections"`
	AvoidDirections []Direction `json:"avoidDirections,omitempty"`
	EnergyType      string      `json:"energyType"`
	PlacementReason string      `json:"placementReason"`
}

type HealthAssessment struct {
	Status            HealthStatus `json:"status"`
	Issues            []string     `json:"issues"`
	Remedy            string       `json:"remedy"`
	DetailedDiagnosis string       `json:"detailedDiagnosis"`
	ActionableSteps   []string     `json:"actionableSteps"`
	PotentialPests    []string     `json:"potentialPests"`
	Confidence        int          `json:"confidence"`
}

// PlantReport is the structured result of one analysis call. It is immutable
// once parsed; the client does not correct model output after the fact.
type PlantReport struct {
	IsMatch             bool             `json:"isMatch"`
	VerificationMessage string           `json:"verificationMessage"`
	CommonName          string           `json:"commonName"`
	ScientificName      string           `json:"scientificName"`
	ShortDescription    string           `json:"shortDescription"`
	CareInstructions    CareInstructions `json:"careInstructions"`
	FunFact             string           `json:"funFact"`
	Toxicity            string           `json:"toxicity"`
	VastuTips           string           `json:"vastuTips"`
	VastuDetails        VastuDetails     `json:"vastuDetails"`
	StepByStepGuide     []string         `json:"stepByStepGuide"`
	HealthAssessment    HealthAssessment `json:"healthAssessment"`
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ChatTurn is one message in the chat transcript. Insertion order is
// chronological; a model turn's predecessor is the user turn that triggered it.
type ChatTurn struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	IsLoading bool   `json:"isLoading"`
	IsError   bool   `json:"isError"`
}

// AppState is the single active state of the application flow.
type AppState string

const (
	StateUpload    AppState = "UPLOAD"
	StateAnalyzing AppState = "ANALYZING"
	StateResults   AppState = "RESULTS"
	StateError     AppState = "ERROR"
)
