package workbook

import "barterforge.ai/internal/sim/model"

type storedPages struct {
	header string
	pages  []string
}

// MemoryStore keeps pages in memory.
type MemoryStore struct {
	byVendor map[model.PartyID]storedPages
	Saves    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byVendor: map[model.PartyID]storedPages{}}
}

func (m *MemoryStore) LoadPages(vendor model.PartyID) (string, []string, bool, error) {
	p, ok := m.byVendor[vendor]
	if !ok {
		return "", nil, false, nil
	}
	return p.header, append([]string(nil), p.pages...), true, nil
}

func (m *MemoryStore) SavePages(vendor model.PartyID, header string, pages []string) error {
	m.byVendor[vendor] = storedPages{header: header, pages: append([]string(nil), pages...)}
	m.Saves++
	return nil
}

func (m *MemoryStore) DeletePages(vendor model.PartyID) error {
	delete(m.byVendor, vendor)
	return nil
}
