package jobs

import "time"

// DateLayout is the backend's date format.
const DateLayout = "20060102"

// SummarizeRequest asks for a one-sentence summary of free-text profile input.
type SummarizeRequest struct {
	Text string `json:"text" validate:"required"`
}

// Summary is the backend's summary of a profile or resume.
type Summary struct {
	Summary string `json:"summary"`
}

// RecommendRequest asks for job openings matching a profile.
type RecommendRequest struct {
	Profile string `json:"profile" validate:"required"`
	Area    string `json:"area"`
	// Date is YYYYMMDD; empty means today.
	Date string `json:"date" validate:"omitempty,len=8,numeric"`
}

// Recommendation is one job opening.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// QuestionsRequest asks for interview questions for a job.
type QuestionsRequest struct {
	JobDescription string `json:"job_description" validate:"required"`
}

// SpeechResult points at the synthesized audio for one question.
type SpeechResult struct {
	Index        int    `json:"-"`
	QuestionText string `json:"question_text"`
	AudioURL     string `json:"audio_file"`
}

// Spoken is a question with its downloaded audio.
type Spoken struct {
	SpeechResult
	Audio []byte
}

func today() string {
	return time.Now().Format(DateLayout)
}
