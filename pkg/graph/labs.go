package graph

import "github.com/paper-pigeon/backend/pkg/common"

// Labs is the static lab table. Every entry becomes a lab node, whether or
// not a researcher references it.
var Labs = []common.Lab{
	{ID: "aims_lab", Name: "AIMS Lab"},
	{ID: "behavioral_data_science_group", Name: "Behavioral Data Science Group"},
	{ID: "bespoke_silicon_group", Name: "Bespoke Silicon Group"},
	{ID: "database_group", Name: "Database Group"},
	{ID: "h2_lab", Name: "H2 Lab"},
	{ID: "human_centered_robotics_lab", Name: "Human-Centered Robotics Lab"},
	{ID: "ictd_lab", Name: "ICTD Lab"},
	{ID: "interactive_data_lab", Name: "Interactive Data Lab"},
	{ID: "make4all_group", Name: "Make4all Group"},
	{ID: "makeability_lab", Name: "Makeability Lab"},
	{ID: "molecular_information_systems_lab", Name: "MISL"},
	{ID: "mostafavi_lab", Name: "Mostafavi Lab"},
	{ID: "personal_robotics_lab", Name: "Personal Robotics Lab"},
	{ID: "raivn_lab", Name: "RAIVN Lab"},
	{ID: "robot_learning_lab", Name: "Robot Learning Lab"},
	{ID: "sampl", Name: "SAMPL"},
	{ID: "social_futures_lab", Name: "Social Futures Lab"},
	{ID: "social_rl_lab", Name: "Social RL Lab"},
	{ID: "snail_lab", Name: "SNAIL"},
	{ID: "theory_of_computation_group", Name: "Theory of Computation Group"},
	{ID: "tsvetshop", Name: "Tsvetshop"},
	{ID: "ubicomp_lab", Name: "UbiComp Lab"},
	{ID: "uw_reality_lab", Name: "UW Reality Lab"},
	{ID: "weird_lab", Name: "WEIRD Lab"},
	{ID: "wildlab", Name: "Wildlab"},
}

// LabTable resolves lab display names to lab ids. Matching is exact.
type LabTable struct {
	labs   []common.Lab
	byName map[string]string
	ids    map[string]struct{}
}

func NewLabTable(labs []common.Lab) *LabTable {
	t := &LabTable{
		labs:   labs,
		byName: make(map[string]string, len(labs)),
		ids:    make(map[string]struct{}, len(labs)),
	}
	for _, l := range labs {
		t.byName[l.Name] = l.ID
		t.ids[l.ID] = struct{}{}
	}
	return t
}

// DefaultLabTable returns a table over Labs.
func DefaultLabTable() *LabTable {
	return NewLabTable(Labs)
}

// Resolve returns the lab id for a display name.
func (t *LabTable) Resolve(name string) (string, bool) {
	id, ok := t.byName[name]
	return id, ok
}

func (t *LabTable) HasID(id string) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *LabTable) All() []common.Lab {
	return t.labs
}
