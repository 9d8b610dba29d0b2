package displayset

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryCatalog is a Catalog backed by maps. Display sets keep their
// insertion order, which is the ordinal used to break ranking ties.
type MemoryCatalog struct {
	mu      sync.RWMutex
	studies map[string]*Study
	sets    map[string][]DisplaySet
	order   []string
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		studies: make(map[string]*Study),
		sets:    make(map[string][]DisplaySet),
	}
}

// AddStudy registers or updates study level attributes.
func (c *MemoryCatalog) AddStudy(s Study) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, ok := c.studies[s.StudyInstanceUID]
	if !ok {
		c.order = append(c.order, s.StudyInstanceUID)
		existing = &Study{}
		c.studies[s.StudyInstanceUID] = existing
	}
	modalities := existing.ModalitiesInStudy
	*existing = s
	if len(existing.ModalitiesInStudy) == 0 {
		existing.ModalitiesInStudy = modalities
	}
	c.linkPriors()
}

// Add appends display sets, creating their studies as needed.
func (c *MemoryCatalog) Add(sets ...DisplaySet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ds := range sets {
		st, ok := c.studies[ds.StudyInstanceUID]
		if !ok {
			st = &Study{StudyInstanceUID: ds.StudyInstanceUID}
			c.studies[ds.StudyInstanceUID] = st
			c.order = append(c.order, ds.StudyInstanceUID)
		}
		c.sets[ds.StudyInstanceUID] = append(c.sets[ds.StudyInstanceUID], ds)
		if ds.Modality != "" && !containsString(st.ModalitiesInStudy, ds.Modality) {
			st.ModalitiesInStudy = append(st.ModalitiesInStudy, ds.Modality)
		}
	}
}

// DisplaySetsForStudy implements Catalog.
func (c *MemoryCatalog) DisplaySetsForStudy(studyUID string) ([]DisplaySet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.studies[studyUID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrStudyNotFound, studyUID)
	}
	return append([]DisplaySet(nil), c.sets[studyUID]...), nil
}

// Study implements Catalog.
func (c *MemoryCatalog) Study(studyUID string) (Study, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.studies[studyUID]
	if !ok {
		return Study{}, fmt.Errorf("%w: %s", ErrStudyNotFound, studyUID)
	}
	out := *st
	out.ModalitiesInStudy = append([]string(nil), st.ModalitiesInStudy...)
	out.Priors = append([]string(nil), st.Priors...)
	return out, nil
}

// StudyUIDs lists known studies in insertion order.
func (c *MemoryCatalog) StudyUIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// DisplaySet finds a display set by instance UID.
func (c *MemoryCatalog) DisplaySet(instanceUID string) (DisplaySet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, uid := range c.order {
		for _, ds := range c.sets[uid] {
			if ds.InstanceUID == instanceUID {
				return ds, true
			}
		}
	}
	return DisplaySet{}, false
}

// linkPriors recomputes priors: studies of the same patient with an earlier
// study date, most recent first. Callers hold the write lock.
func (c *MemoryCatalog) linkPriors() {
	for _, st := range c.studies {
		st.Priors = nil
		if st.PatientID == "" || st.StudyDate == "" {
			continue
		}
		var priors []*Study
		for _, other := range c.studies {
			if other == st || other.PatientID != st.PatientID || other.StudyDate == "" {
				continue
			}
			if other.StudyDate < st.StudyDate {
				priors = append(priors, other)
			}
		}
		sort.Slice(priors, func(i, j int) bool {
			if priors[i].StudyDate != priors[j].StudyDate {
				return priors[i].StudyDate > priors[j].StudyDate
			}
			return priors[i].StudyInstanceUID < priors[j].StudyInstanceUID
		})
		for _, p := range priors {
			st.Priors = append(st.Priors, p.StudyInstanceUID)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
