package builder

import (
	"fmt"
	"sort"

	"admissions-portal/portal-backend/internal/datasource"
)

// FieldType is the value type of a catalog field
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldDate    FieldType = "date"
	FieldBoolean FieldType = "boolean"
)

// FieldCategory tells the designer how a field is usually used
type FieldCategory string

const (
	CategoryDimension FieldCategory = "dimension"
	CategoryMeasure   FieldCategory = "measure"
	CategoryDate      FieldCategory = "date"
)

// FieldDefinition describes one reportable column
type FieldDefinition struct {
	Name       string        `json:"name"`
	Label      string        `json:"label"`
	Type       FieldType     `json:"type"`
	Category   FieldCategory `json:"category"`
	Nullable   bool          `json:"nullable"`
	EnumValues []string      `json:"enum_values,omitempty"`
}

// DataSourceSchema is one reportable table and its fields
type DataSourceSchema struct {
	Name        string            `json:"name"`
	Table       string            `json:"-"`
	DisplayName string            `json:"display_name"`
	Description string            `json:"description,omitempty"`
	Fields      []FieldDefinition `json:"fields"`

	byName map[string]*FieldDefinition
}

// Field looks up a field by name
func (s *DataSourceSchema) Field(name string) (*FieldDefinition, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Catalog is the fixed set of data sources reports may query. It is read-only once built.
type Catalog struct {
	dataSources map[string]*DataSourceSchema
}

// NewCatalog creates the catalog of admissions data sources
func NewCatalog() *Catalog {
	c := &Catalog{dataSources: make(map[string]*DataSourceSchema)}
	c.registerDefaultDataSources()
	return c
}

// NewCatalogFrom builds a catalog from explicit schemas
func NewCatalogFrom(schemas ...*DataSourceSchema) *Catalog {
	c := &Catalog{dataSources: make(map[string]*DataSourceSchema)}
	for _, s := range schemas {
		c.register(s)
	}
	return c
}

func (c *Catalog) register(s *DataSourceSchema) {
	if s.Table == "" {
		s.Table = s.Name
	}
	s.byName = make(map[string]*FieldDefinition, len(s.Fields))
	for i := range s.Fields {
		s.byName[s.Fields[i].Name] = &s.Fields[i]
	}
	c.dataSources[s.Name] = s
}

func (c *Catalog) registerDefaultDataSources() {
	c.register(&DataSourceSchema{
		Name:        "leads",
		DisplayName: "Leads",
		Description: "Prospective students captured from forms, events, and referrals",
		Fields: []FieldDefinition{
			{Name: "id", Label: "Lead ID", Type: FieldString, Category: CategoryDimension},
			{Name: "first_name", Label: "First Name", Type: FieldString, Category: CategoryDimension},
			{Name: "last_name", Label: "Last Name", Type: FieldString, Category: CategoryDimension},
			{Name: "email", Label: "Email", Type: FieldString, Category: CategoryDimension, Nullable: true},
			{Name: "phone", Label: "Phone", Type: FieldString, Category: CategoryDimension, Nullable: true},
			{Name: "source", Label: "Source", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"web", "referral", "event", "social", "agent"}},
			{Name: "status", Label: "Status", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"new", "contacted", "qualified", "applied", "enrolled", "lost"}},
			{Name: "program_interest", Label: "Program of Interest", Type: FieldString, Category: CategoryDimension, Nullable: true},
			{Name: "assigned_to", Label: "Assigned Counselor", Type: FieldString, Category: CategoryDimension, Nullable: true},
			{Name: "lead_score", Label: "Lead Score", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "is_international", Label: "International", Type: FieldBoolean, Category: CategoryDimension},
			{Name: "created_at", Label: "Created Date", Type: FieldDate, Category: CategoryDate},
			{Name: "last_contacted_at", Label: "Last Contacted", Type: FieldDate, Category: CategoryDate, Nullable: true},
		},
	})

	c.register(&DataSourceSchema{
		Name:        "students",
		DisplayName: "Students",
		Description: "Enrolled and former students",
		Fields: []FieldDefinition{
			{Name: "id", Label: "Student ID", Type: FieldString, Category: CategoryDimension},
			{Name: "first_name", Label: "First Name", Type: FieldString, Category: CategoryDimension},
			{Name: "last_name", Label: "Last Name", Type: FieldString, Category: CategoryDimension},
			{Name: "email", Label: "Email", Type: FieldString, Category: CategoryDimension},
			{Name: "program", Label: "Program", Type: FieldString, Category: CategoryDimension},
			{Name: "campus", Label: "Campus", Type: FieldString, Category: CategoryDimension, Nullable: true},
			{Name: "enrollment_status", Label: "Enrollment Status", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"enrolled", "deferred", "withdrawn", "graduated"}},
			{Name: "gpa", Label: "GPA", Type: FieldNumber, Category: CategoryMeasure, Nullable: true},
			{Name: "credits_completed", Label: "Credits Completed", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "tuition_balance", Label: "Tuition Balance", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "is_full_time", Label: "Full Time", Type: FieldBoolean, Category: CategoryDimension},
			{Name: "enrolled_at", Label: "Enrollment Date", Type: FieldDate, Category: CategoryDate},
			{Name: "expected_graduation", Label: "Expected Graduation", Type: FieldDate, Category: CategoryDate, Nullable: true},
		},
	})

	c.register(&DataSourceSchema{
		Name:        "applications",
		DisplayName: "Applications",
		Description: "Admission applications and decisions",
		Fields: []FieldDefinition{
			{Name: "id", Label: "Application ID", Type: FieldString, Category: CategoryDimension},
			{Name: "applicant_name", Label: "Applicant", Type: FieldString, Category: CategoryDimension},
			{Name: "program", Label: "Program", Type: FieldString, Category: CategoryDimension},
			{Name: "term", Label: "Term", Type: FieldString, Category: CategoryDimension},
			{Name: "status", Label: "Status", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"submitted", "under_review", "accepted", "rejected", "waitlisted"}},
			{Name: "application_fee", Label: "Application Fee", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "test_score", Label: "Test Score", Type: FieldNumber, Category: CategoryMeasure, Nullable: true},
			{Name: "essay_submitted", Label: "Essay Submitted", Type: FieldBoolean, Category: CategoryDimension},
			{Name: "submitted_at", Label: "Submitted Date", Type: FieldDate, Category: CategoryDate},
			{Name: "decided_at", Label: "Decision Date", Type: FieldDate, Category: CategoryDate, Nullable: true},
		},
	})

	c.register(&DataSourceSchema{
		Name:        "campaigns",
		DisplayName: "Campaigns",
		Description: "Outreach campaigns and their delivery metrics",
		Fields: []FieldDefinition{
			{Name: "id", Label: "Campaign ID", Type: FieldString, Category: CategoryDimension},
			{Name: "name", Label: "Name", Type: FieldString, Category: CategoryDimension},
			{Name: "channel", Label: "Channel", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"email", "sms", "voice", "whatsapp"}},
			{Name: "status", Label: "Status", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"draft", "scheduled", "running", "paused", "completed", "cancelled"}},
			{Name: "audience_size", Label: "Audience Size", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "sent_count", Label: "Sent", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "response_rate", Label: "Response Rate", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "conversions", Label: "Conversions", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "budget", Label: "Budget", Type: FieldNumber, Category: CategoryMeasure, Nullable: true},
			{Name: "is_automated", Label: "Automated", Type: FieldBoolean, Category: CategoryDimension},
			{Name: "launched_at", Label: "Launch Date", Type: FieldDate, Category: CategoryDate, Nullable: true},
		},
	})

	c.register(&DataSourceSchema{
		Name:        "placements",
		Table:       "practicum_placements",
		DisplayName: "Practicum Placements",
		Description: "Student practicum placements at partner sites",
		Fields: []FieldDefinition{
			{Name: "id", Label: "Placement ID", Type: FieldString, Category: CategoryDimension},
			{Name: "student_name", Label: "Student", Type: FieldString, Category: CategoryDimension},
			{Name: "site_name", Label: "Site", Type: FieldString, Category: CategoryDimension},
			{Name: "specialty", Label: "Specialty", Type: FieldString, Category: CategoryDimension},
			{Name: "status", Label: "Status", Type: FieldString, Category: CategoryDimension, EnumValues: []string{"pending", "active", "completed", "cancelled"}},
			{Name: "hours_completed", Label: "Hours Completed", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "hours_required", Label: "Hours Required", Type: FieldNumber, Category: CategoryMeasure},
			{Name: "supervisor_rating", Label: "Supervisor Rating", Type: FieldNumber, Category: CategoryMeasure, Nullable: true},
			{Name: "start_date", Label: "Start Date", Type: FieldDate, Category: CategoryDate},
			{Name: "end_date", Label: "End Date", Type: FieldDate, Category: CategoryDate, Nullable: true},
		},
	})
}

// GetDataSources returns all data sources ordered by name
func (c *Catalog) GetDataSources() []*DataSourceSchema {
	sources := make([]*DataSourceSchema, 0, len(c.dataSources))
	for _, s := range c.dataSources {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources
}

// GetDataSource returns a data source by name
func (c *Catalog) GetDataSource(name string) (*DataSourceSchema, error) {
	s, ok := c.dataSources[name]
	if !ok {
		return nil, fmt.Errorf("data source not found: %s", name)
	}
	return s, nil
}

// GetFieldsByCategory returns the fields of a data source in one category
func (c *Catalog) GetFieldsByCategory(name string, category FieldCategory) ([]FieldDefinition, error) {
	s, err := c.GetDataSource(name)
	if err != nil {
		return nil, err
	}
	var fields []FieldDefinition
	for _, f := range s.Fields {
		if f.Category == category {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// SupportedOperators returns the filter operators allowed for a field type.
// Null checks and equality apply to every type.
func SupportedOperators(fieldType FieldType) []datasource.Operator {
	common := []datasource.Operator{
		datasource.OpEquals, datasource.OpNotEquals,
		datasource.OpIsNull, datasource.OpIsNotNull,
	}
	switch fieldType {
	case FieldString:
		return append(common,
			datasource.OpContains, datasource.OpStartsWith, datasource.OpEndsWith,
			datasource.OpIn, datasource.OpNotIn)
	case FieldNumber:
		return append(common,
			datasource.OpGreaterThan, datasource.OpGreaterEq, datasource.OpLessThan, datasource.OpLessEq,
			datasource.OpBetween, datasource.OpIn, datasource.OpNotIn)
	case FieldDate:
		return append(common,
			datasource.OpGreaterThan, datasource.OpGreaterEq, datasource.OpLessThan, datasource.OpLessEq,
			datasource.OpBetween)
	case FieldBoolean:
		return common
	default:
		return []datasource.Operator{datasource.OpIsNull, datasource.OpIsNotNull}
	}
}

// IsOperatorSupported reports whether op may filter a field of the given type
func IsOperatorSupported(fieldType FieldType, op datasource.Operator) bool {
	for _, candidate := range SupportedOperators(fieldType) {
		if candidate == op {
			return true
		}
	}
	return false
}

// SupportedAggregations returns the chart aggregations applicable to a field type
func SupportedAggregations(fieldType FieldType) []Aggregation {
	if fieldType == FieldNumber {
		return []Aggregation{AggregationCount, AggregationSum, AggregationAvg, AggregationMin, AggregationMax}
	}
	return []Aggregation{AggregationCount}
}
