package metrics

import (
	"bytes"
	"fmt"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the media type of rendered snapshots.
const ContentType = "text/plain; charset=utf-8"

// Render gathers the registry and encodes it in the text exposition format.
// Families are sorted by name and series by label values, so repeated renders
// without updates are byte-identical.
func (r *Registry) Render() ([]byte, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	return Encode(families)
}

// Encode writes metric families in the text exposition format.
func Encode(families []*dto.MetricFamily) ([]byte, error) {
	var buf bytes.Buffer
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, family); err != nil {
			return nil, fmt.Errorf("metrics: encode %s: %w", family.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}
