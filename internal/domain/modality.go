package domain

// Modality enumerates the data-type categories an artifact or step can carry.
type Modality string

const (
	ModalityText       Modality = "text"
	ModalityTabular    Modality = "tabular"
	ModalityImage      Modality = "image"
	ModalityAudio      Modality = "audio"
	ModalityVideo      Modality = "video"
	ModalityMultimodal Modality = "multimodal"
	ModalityUnknown    Modality = "unknown"

	// ModalityAny marks a step as compatible with every pipeline modality.
	ModalityAny Modality = "any"
)

// Valid reports whether m is a concrete, storable modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityTabular, ModalityImage, ModalityAudio, ModalityVideo, ModalityMultimodal:
		return true
	}
	return false
}

// Compatible reports whether a step declaring modality m may run inside a
// pipeline declared for target.
func (m Modality) Compatible(target Modality) bool {
	return m == ModalityAny || m == target
}

// TaskType enumerates supported machine-learning task categories.
type TaskType string

const (
	TaskClassification       TaskType = "classification"
	TaskRegression           TaskType = "regression"
	TaskNER                  TaskType = "ner"
	TaskObjectDetection      TaskType = "object_detection"
	TaskSemanticSegmentation TaskType = "semantic_segmentation"
	TaskTextGeneration       TaskType = "text_generation"
	TaskTranslation          TaskType = "translation"
	TaskSummarization        TaskType = "summarization"
	TaskQuestionAnswering    TaskType = "question_answering"
	TaskAudioClassification  TaskType = "audio_classification"

	// TaskAuto defers task selection to the modality classifier; it must be
	// resolved to a concrete type before a pipeline can execute.
	TaskAuto TaskType = "auto"
)

// Valid reports whether t names a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskClassification, TaskRegression, TaskNER, TaskObjectDetection,
		TaskSemanticSegmentation, TaskTextGeneration, TaskTranslation,
		TaskSummarization, TaskQuestionAnswering, TaskAudioClassification, TaskAuto:
		return true
	}
	return false
}
