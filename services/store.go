package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/caio-sobreiro/dicomcore/dicom"
	"github.com/caio-sobreiro/dicomcore/dimse"
	"github.com/caio-sobreiro/dicomcore/interfaces"
	"github.com/caio-sobreiro/dicomcore/types"
)

// InMemoryDataStore is a map-backed interfaces.DataStore, sufficient for
// a reference SCP or for tests — not for production persistence.
type InMemoryDataStore struct {
	mu       sync.RWMutex
	patients map[string]*types.Patient
	studies  map[string]*types.Study
	series   map[string]*types.Series
	images   map[string]*types.Image
}

// NewInMemoryDataStore builds an empty store.
func NewInMemoryDataStore() *InMemoryDataStore {
	return &InMemoryDataStore{
		patients: make(map[string]*types.Patient),
		studies:  make(map[string]*types.Study),
		series:   make(map[string]*types.Series),
		images:   make(map[string]*types.Image),
	}
}

func (s *InMemoryDataStore) FindPatients(query *types.QueryRequest) ([]types.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Patient
	for _, p := range s.patients {
		if query.PatientID != "" && p.ID != query.PatientID {
			continue
		}
		if query.PatientName != "" && p.Name != query.PatientName {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *InMemoryDataStore) GetPatient(patientID string) (*types.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[patientID]
	if !ok {
		return nil, fmt.Errorf("services: patient %q not found", patientID)
	}
	return p, nil
}

func (s *InMemoryDataStore) StorePatient(patient *types.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[patient.ID] = patient
	return nil
}

func (s *InMemoryDataStore) FindStudies(query *types.QueryRequest) ([]types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Study
	for _, st := range s.studies {
		if query.StudyInstanceUID != "" && st.InstanceUID != query.StudyInstanceUID {
			continue
		}
		if query.AccessionNumber != "" && st.AccessionNum != query.AccessionNumber {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *InMemoryDataStore) GetStudy(studyInstanceUID string) (*types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.studies[studyInstanceUID]
	if !ok {
		return nil, fmt.Errorf("services: study %q not found", studyInstanceUID)
	}
	return st, nil
}

func (s *InMemoryDataStore) StoreStudy(study *types.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.studies[study.InstanceUID] = study
	return nil
}

func (s *InMemoryDataStore) FindSeries(query *types.QueryRequest) ([]types.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Series
	for _, se := range s.series {
		if query.SeriesInstanceUID != "" && se.InstanceUID != query.SeriesInstanceUID {
			continue
		}
		out = append(out, *se)
	}
	return out, nil
}

func (s *InMemoryDataStore) GetSeries(seriesInstanceUID string) (*types.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se, ok := s.series[seriesInstanceUID]
	if !ok {
		return nil, fmt.Errorf("services: series %q not found", seriesInstanceUID)
	}
	return se, nil
}

func (s *InMemoryDataStore) StoreSeries(series *types.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[series.InstanceUID] = series
	return nil
}

func (s *InMemoryDataStore) FindImages(query *types.QueryRequest) ([]types.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Image
	for _, im := range s.images {
		if query.SOPInstanceUID != "" && im.SOPInstanceUID != query.SOPInstanceUID {
			continue
		}
		out = append(out, *im)
	}
	return out, nil
}

func (s *InMemoryDataStore) GetImage(sopInstanceUID string) (*types.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	im, ok := s.images[sopInstanceUID]
	if !ok {
		return nil, fmt.Errorf("services: image %q not found", sopInstanceUID)
	}
	return im, nil
}

func (s *InMemoryDataStore) StoreImage(image *types.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[image.SOPInstanceUID] = image
	return nil
}

var _ interfaces.DataStore = (*InMemoryDataStore)(nil)

// StoreService persists incoming C-STORE-RQ instances into a DataStore
// (PS3.4 Annex B), decoding the attached data set with the dicom package.
type StoreService struct {
	Store interfaces.DataStore
}

// NewStoreService builds a C-STORE handler backed by store.
func NewStoreService(store interfaces.DataStore) *StoreService {
	return &StoreService{Store: store}
}

// HandleDIMSE implements CommandHandler.
func (s *StoreService) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	status := dimse.StatusSuccess
	if dicom.HasPart10Header(dataset) {
		stripped, err := dicom.StripPart10Header(dataset)
		if err != nil {
			slog.ErrorContext(ctx, "C-STORE: failed to strip Part 10 header", "error", err)
			return NewResponseBuilder(cmd).CStoreResponse(dimse.StatusFailureLow, cmd.AffectedSOPInstanceUID), nil, nil
		}
		dataset = stripped
	}
	ds, err := dicom.ParseDataset(dataset)
	if err != nil {
		slog.ErrorContext(ctx, "C-STORE: failed to parse data set", "error", err)
		status = dimse.StatusFailureLow
	} else if err := s.Store.StoreImage(&types.Image{
		SOPInstanceUID: cmd.AffectedSOPInstanceUID,
		InstanceNumber: ds.GetString(dicom.Tag{Group: 0x0020, Element: 0x0013}),
	}); err != nil {
		slog.ErrorContext(ctx, "C-STORE: failed to persist instance", "error", err)
		status = dimse.StatusFailureLow
	}

	return NewResponseBuilder(cmd).CStoreResponse(status, cmd.AffectedSOPInstanceUID), nil, nil
}

// FindService answers C-FIND-RQ by querying a DataStore and streaming one
// Pending response per match, followed by a terminal Success (PS3.4
// Annex C). Every query is answered at the study level: the Query/Retrieve
// Level element is not read, and each match carries only the Study
// Instance UID and Accession Number.
type FindService struct {
	Store interfaces.DataStore
}

// NewFindService builds a C-FIND handler backed by store.
func NewFindService(store interfaces.DataStore) *FindService {
	return &FindService{Store: store}
}

// HandleDIMSE implements CommandHandler.
func (s *FindService) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	query, err := dicom.ParseDataset(dataset)
	if err != nil {
		return NewCFindErrorResponse(cmd, dimse.StatusFailureLow), nil, nil
	}

	req := &types.QueryRequest{
		PatientID:        query.GetString(dicom.Tag{Group: 0x0010, Element: 0x0020}),
		PatientName:      query.GetString(dicom.Tag{Group: 0x0010, Element: 0x0010}),
		StudyInstanceUID: query.GetString(dicom.Tag{Group: 0x0020, Element: 0x000D}),
	}

	studies, err := s.Store.FindStudies(req)
	if err != nil {
		return NewCFindErrorResponse(cmd, dimse.StatusFailureLow), nil, nil
	}

	for _, st := range studies {
		match := dicom.NewDataset()
		match.AddElement(dicom.Tag{Group: 0x0020, Element: 0x000D}, dicom.VR_UI, st.InstanceUID)
		match.AddElement(dicom.Tag{Group: 0x0008, Element: 0x0050}, dicom.VR_SH, st.AccessionNum)
		pending := NewCFindPendingResponse(cmd)
		if sendErr := responder.Send(ctx, pending, match.EncodeDataset()); sendErr != nil {
			return dimse.Command{}, nil, fmt.Errorf("services: send C-FIND pending response: %w", sendErr)
		}
	}

	return NewCFindSuccessResponse(cmd), nil, nil
}

var (
	_ CommandHandler = (*StoreService)(nil)
	_ CommandHandler = (*FindService)(nil)
)
