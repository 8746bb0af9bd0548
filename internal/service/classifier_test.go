// file: internal/service/classifier_test.go
package service

import (
	"testing"

	"PluginAtlas/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func recordWithHeader(field, value string) *domain.PluginRecord {
	return &domain.PluginRecord{
		Key:     "p/p.php",
		Name:    "P",
		Headers: map[string]string{field: value},
	}
}

// ============================================================================
//  自研插件判定
// ============================================================================

func TestClassifier_InternalCaseInsensitive(t *testing.T) {
	c := NewClassifier("")
	testCases := []struct {
		value    string
		expected bool
	}{
		{"yes", true},
		{"Yes", true},
		{"YES", true},
		{" yes ", true},
		{"no", false},
		{"", false},
		{"true", false},
	}

	for _, tc := range testCases {
		t.Run("value_"+tc.value, func(t *testing.T) {
			rec := recordWithHeader(DefaultInternalMetadataField, tc.value)
			assert.Equal(t, tc.expected, c.IsInternal(rec))
		})
	}

	// 字段缺失或 Headers 为 nil 时判定为第三方
	assert.False(t, c.IsInternal(&domain.PluginRecord{Headers: map[string]string{}}))
	assert.False(t, c.IsInternal(&domain.PluginRecord{}))
	assert.False(t, c.IsInternal(nil))
}

func TestClassifier_FieldOverride(t *testing.T) {
	c := NewClassifier("Built In-House")

	assert.True(t, c.IsInternal(recordWithHeader("Built In-House", "yes")))
	// 覆盖生效后默认字段不再参与判定
	assert.False(t, c.IsInternal(recordWithHeader(DefaultInternalMetadataField, "yes")))

	// 空白覆盖值回退到编译期默认字段
	def := NewClassifier("   ")
	assert.True(t, def.IsInternal(recordWithHeader(DefaultInternalMetadataField, "yes")))
}

// ============================================================================
//  范围划分
// ============================================================================

func TestClassifier_ScopePartitionTotality(t *testing.T) {
	records := []*domain.PluginRecord{
		{Key: "mu", MustUse: true},
		{Key: "net", NetworkActive: true},
		{Key: "act", ActiveSites: map[int64]string{1: "Site"}},
		{Key: "idle"},
	}

	c := NewClassifier("")
	cls := c.Classify(records)

	// 每条记录恰好落入一个范围桶
	total := len(cls.MustUse) + len(cls.NetworkActive) + len(cls.Active) + len(cls.Inactive)
	assert.Equal(t, len(records), total)
	assert.Len(t, cls.MustUse, 1)
	assert.Len(t, cls.NetworkActive, 1)
	assert.Len(t, cls.Active, 1)
	assert.Len(t, cls.Inactive, 1)

	// 自研/第三方是另一组完整划分
	assert.Equal(t, len(records), len(cls.Internal)+len(cls.External))
}

func TestClassifier_Scope(t *testing.T) {
	c := NewClassifier("")
	assert.Equal(t, domain.ScopeMustUse, c.Scope(&domain.PluginRecord{MustUse: true}))
	assert.Equal(t, domain.ScopeNetworkActive, c.Scope(&domain.PluginRecord{NetworkActive: true}))
	assert.Equal(t, domain.ScopeActive, c.Scope(&domain.PluginRecord{ActiveSites: map[int64]string{1: "S"}}))
	assert.Equal(t, domain.ScopeInactive, c.Scope(&domain.PluginRecord{}))
}

func TestClassifier_Summarize(t *testing.T) {
	records := []*domain.PluginRecord{
		{Key: "mu", MustUse: true, Headers: map[string]string{DefaultInternalMetadataField: "yes"}},
		{Key: "net", NetworkActive: true},
		{Key: "act", ActiveSites: map[int64]string{1: "Site"}, Headers: map[string]string{DefaultInternalMetadataField: "YES"}},
		{Key: "idle"},
	}

	counts := NewClassifier("").Summarize(records)

	assert.Equal(t, domain.PluginCounts{
		Total:         4,
		Internal:      2,
		MustUse:       1,
		NetworkActive: 1,
		Inactive:      1,
		Active:        1,
	}, counts)
}
