package processor

import "sync"

// Session owns the trained-model slot for one user session. The slot is
// created empty, replaced wholesale by the most recent successful Train,
// and read by Predict. Single writer, most recent wins.
type Session struct {
	mu    sync.RWMutex
	model *TrainedModel
}

func NewSession() *Session {
	return &Session{}
}

// TrainOn trains on the view and, on success, installs the new model in
// the slot. A failed training leaves the previous model in place.
func (s *Session) TrainOn(v FilteredView, target string) (TrainingResult, error) {
	model, result, err := Train(v, target)
	if err != nil {
		return TrainingResult{}, err
	}

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	return result, nil
}

// Predict scores a single input against the session's current model,
// failing with ErrModelNotTrained when the slot is still empty.
func (s *Session) Predict(in PredictionInput) (float64, error) {
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	if model == nil {
		return 0, ErrModelNotTrained
	}
	return model.Predict(in), nil
}

// Model exposes the current slot content, nil before the first Train.
func (s *Session) Model() *TrainedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}
