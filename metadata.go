package ortbench

import (
	"fmt"
	"io"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelMetadata is the descriptive metadata stored in an ONNX file.
type ModelMetadata struct {
	Producer    string            `json:"producer" yaml:"producer"`
	GraphName   string            `json:"graph_name" yaml:"graph_name"`
	Domain      string            `json:"domain" yaml:"domain"`
	Description string            `json:"description" yaml:"description"`
	Version     int64             `json:"version" yaml:"version"`
	Custom      map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Metadata reads the metadata of the engine's model.
func (e *Engine) Metadata() (ModelMetadata, error) {
	return ReadMetadata(e.cfg.ModelPath)
}

// ReadMetadata reads model metadata without creating a session.
func ReadMetadata(path string) (ModelMetadata, error) {
	md, err := ort.GetModelMetadata(path)
	if err != nil {
		return ModelMetadata{}, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer md.Destroy()

	var m ModelMetadata
	if m.Producer, err = md.GetProducerName(); err != nil {
		return m, fmt.Errorf("producer name: %w", err)
	}
	if m.GraphName, err = md.GetGraphName(); err != nil {
		return m, fmt.Errorf("graph name: %w", err)
	}
	if m.Domain, err = md.GetDomain(); err != nil {
		return m, fmt.Errorf("domain: %w", err)
	}
	if m.Description, err = md.GetDescription(); err != nil {
		return m, fmt.Errorf("description: %w", err)
	}
	if m.Version, err = md.GetVersion(); err != nil {
		return m, fmt.Errorf("version: %w", err)
	}

	keys, err := md.GetCustomMetadataMapKeys()
	if err != nil {
		return m, fmt.Errorf("custom metadata keys: %w", err)
	}
	for _, k := range keys {
		v, ok, err := md.LookupCustomMetadataMap(k)
		if err != nil {
			return m, fmt.Errorf("custom metadata %q: %w", k, err)
		}
		if !ok {
			continue
		}
		if m.Custom == nil {
			m.Custom = make(map[string]string)
		}
		m.Custom[k] = v
	}
	return m, nil
}

// WriteSignature prints metadata and the input/output signatures the way the
// inspect command shows them.
func WriteSignature(w io.Writer, md ModelMetadata, inputs, outputs []TensorInfo) error {
	_, err := fmt.Fprintf(w, "producer     %s\ngraph        %s\ndomain       %s\ndescription  %s\nversion      %d\n",
		md.Producer, md.GraphName, md.Domain, md.Description, md.Version)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(md.Custom))
	for k := range md.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "  %s = %s\n", k, md.Custom[k]); err != nil {
			return err
		}
	}

	if err := writeInfos(w, "input", inputs); err != nil {
		return err
	}
	return writeInfos(w, "output", outputs)
}

func writeInfos(w io.Writer, kind string, infos []TensorInfo) error {
	if _, err := fmt.Fprintf(w, "%s number=%d\n", kind, len(infos)); err != nil {
		return err
	}
	for i, info := range infos {
		_, err := fmt.Fprintf(w, "id=%d name=%s type=%s dims=%d shape=[%s] elements=%d\n",
			i, info.Name, info.ElementType, info.Rank(), FormatDims(info.Dims), info.ElementCount())
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadSignature lists the model's inputs and outputs without creating a session.
func ReadSignature(path string) (inputs, outputs []TensorInfo, err error) {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read model signature: %w", err)
	}
	for _, info := range inputInfo {
		inputs = append(inputs, tensorInfo(info))
	}
	for _, info := range outputInfo {
		outputs = append(outputs, tensorInfo(info))
	}
	return inputs, outputs, nil
}
