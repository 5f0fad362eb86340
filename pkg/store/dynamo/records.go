package dynamo

import (
	"math"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/paper-pigeon/backend/pkg/common"
)

// flexNumber accepts numbers stored either as N or as S attributes. Values
// that do not parse are treated as absent.
type flexNumber struct {
	value *float64
}

func (f *flexNumber) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	default:
		f.value = nil
		return nil
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		f.value = nil
		return nil
	}
	f.value = &n
	return nil
}

func (f *flexNumber) float() *float64 {
	if f == nil || f.value == nil {
		return nil
	}
	v := *f.value
	return &v
}

func (f *flexNumber) int() *int {
	if f == nil || f.value == nil {
		return nil
	}
	v := int(*f.value)
	return &v
}

// flexString accepts text stored as S, N or BOOL. Other types are treated as
// absent.
type flexString struct {
	value *string
}

func (f *flexString) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	f.value = scalarText(av)
	return nil
}

func (f *flexString) ptr() *string {
	if f == nil || f.value == nil {
		return nil
	}
	v := *f.value
	return &v
}

func (f *flexString) str() string {
	if p := f.ptr(); p != nil {
		return *p
	}
	return ""
}

// flexStrings accepts L, SS and NS attributes. List elements that are not
// text or numbers are dropped.
type flexStrings []string

func (f *flexStrings) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberL:
		out := make(flexStrings, 0, len(v.Value))
		for _, e := range v.Value {
			if t := scalarText(e); t != nil {
				out = append(out, *t)
			}
		}
		*f = out
	case *types.AttributeValueMemberSS:
		*f = append(flexStrings{}, v.Value...)
	case *types.AttributeValueMemberNS:
		*f = append(flexStrings{}, v.Value...)
	default:
		*f = nil
	}
	return nil
}

func scalarText(av types.AttributeValue) *string {
	var t string
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		t = v.Value
	case *types.AttributeValueMemberN:
		t = v.Value
	case *types.AttributeValueMemberBOOL:
		t = strconv.FormatBool(v.Value)
	default:
		return nil
	}
	return &t
}

type ddbResearcher struct {
	ResearcherID string      `dynamodbav:"researcher_id"`
	Name         *flexString `dynamodbav:"name"`
	Advisor      *flexString `dynamodbav:"advisor"`
	ContactInfo  flexStrings `dynamodbav:"contact_info"`
	Labs         flexStrings `dynamodbav:"labs"`
	Standing     *flexString `dynamodbav:"standing"`
}

func (r ddbResearcher) toCommon() common.Researcher {
	return common.Researcher{
		ResearcherID: r.ResearcherID,
		Name:         r.Name.str(),
		Advisor:      r.Advisor.ptr(),
		ContactInfo:  r.ContactInfo,
		Labs:         r.Labs,
		Standing:     r.Standing.ptr(),
	}
}

type ddbPaperEdge struct {
	ResearcherOneID string `dynamodbav:"researcher_one_id"`
	ResearcherTwoID string `dynamodbav:"researcher_two_id"`
}

type ddbAdvisorEdge struct {
	AdviseeID string `dynamodbav:"advisee_id"`
	AdvisorID string `dynamodbav:"advisor_id"`
}

type ddbLibraryEntry struct {
	ResearcherID string `dynamodbav:"researcher_id"`
	DocumentID   string `dynamodbav:"document_id"`
}

type ddbPaper struct {
	DocumentID string      `dynamodbav:"document_id"`
	Title      *flexString `dynamodbav:"title"`
	Year       *flexNumber `dynamodbav:"year"`
	Tags       flexStrings `dynamodbav:"tags"`
	LabID      *string     `dynamodbav:"lab_id"`
}

func (p ddbPaper) toCommon() common.Paper {
	return common.Paper{
		DocumentID: p.DocumentID,
		Title:      p.Title.ptr(),
		Year:       p.Year.int(),
		Tags:       p.Tags,
		LabID:      p.LabID,
	}
}

type ddbDescription struct {
	ResearcherID string      `dynamodbav:"researcher_id"`
	About        *flexString `dynamodbav:"about"`
}

type ddbMetric struct {
	ResearcherID string      `dynamodbav:"researcher_id"`
	Influence    *flexNumber `dynamodbav:"influence"`
}
