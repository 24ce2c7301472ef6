package service

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"hairstudio/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// CatalogService keeps the studio's service list in memory.
type CatalogService struct {
	logger      *zerolog.Logger
	services    []models.Service
	servicesMap map[string]models.Service
	mu          sync.RWMutex
}

func NewCatalogService(services []models.Service, logger *zerolog.Logger) *CatalogService {
	s := &CatalogService{logger: logger}
	s.Replace(services)
	return s
}

// GetService returns an active service by id.
func (s *CatalogService) GetService(id string) (*models.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.servicesMap[id]
	if !ok || !svc.IsActive {
		return nil, false
	}
	return &svc, true
}

// ActiveServices returns active services ordered by sort order, then name.
func (s *CatalogService) ActiveServices() []*models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*models.Service, 0, len(s.services))
	for i := range s.services {
		if s.services[i].IsActive {
			svc := s.services[i]
			result = append(result, &svc)
		}
	}
	return result
}

func (s *CatalogService) Replace(services []models.Service) {
	sorted := append([]models.Service(nil), services...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].Name < sorted[j].Name
	})

	servicesMap := make(map[string]models.Service, len(sorted))
	for _, svc := range sorted {
		servicesMap[svc.ID] = svc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = sorted
	s.servicesMap = servicesMap
}

// Reload re-reads the catalog file and swaps the list in place.
func (s *CatalogService) Reload(path string) error {
	services, err := LoadCatalogFile(path)
	if err != nil {
		return err
	}
	s.Replace(services)
	if s.logger != nil {
		s.logger.Info().Int("count", len(services)).Str("path", path).Msg("service catalog reloaded")
	}
	return nil
}

type catalogFile struct {
	Services []models.Service `yaml:"services"`
}

// LoadCatalogFile reads a services.yaml file.
func LoadCatalogFile(path string) ([]models.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return file.Services, nil
}
