package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/xbind/pkg/marshal"
	"github.com/twinfer/xbind/pkg/xbind"
)

const (
	operationUnmarshal = "unmarshal"
	operationMarshal   = "marshal"
)

// BindingProcessor is a Benthos processor that converts between XML
// documents and structured messages using a YAML binding file.
type BindingProcessor struct {
	config     BindingConfig
	binder     *xbind.Binder
	opts       []xbind.Option
	logger     *service.Logger
	mRead      *service.MetricCounter
	mWritten   *service.MetricCounter
	mErrors    *service.MetricCounter
	mRecovered *service.MetricCounter
	mLatency   *service.MetricTimer
}

// BindingConfig contains configuration parameters for the binding processor.
type BindingConfig struct {
	BindingPath string `json:"binding_path" yaml:"binding_path"`
	Operation   string `json:"operation" yaml:"operation"`
	RootElement string `json:"root_element" yaml:"root_element"`
	Validate    bool   `json:"validate" yaml:"validate"`
	FailFast    bool   `json:"fail_fast" yaml:"fail_fast"`
}

func init() {
	err := service.RegisterProcessor(
		"xml_binding",
		bindingProcessorConfig(),
		func(conf *service.ParsedConfig, mgr *service.Resources) (service.Processor, error) {
			return newBindingProcessorFromConfig(conf, mgr)
		},
	)
	if err != nil {
		panic(err)
	}
}

func main() {
	service.RunCLI(context.Background())
}

// bindingProcessorConfig returns a config spec for an xml_binding processor.
func bindingProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Reads XML documents into structured messages, or writes structured messages as XML, using a YAML binding file.").
		Description("The binding file maps XML Schema types and global elements to structured values. Unmarshalling accepts xsi:type and xsi:nil; values that fail to convert are reported on the message while the rest of the document is still read.").
		Field(service.NewStringField("binding_path").
			Description("Path to the YAML binding file.").
			Example("./bindings/orders.yaml")).
		Field(service.NewStringEnumField("operation", operationUnmarshal, operationMarshal).
			Description("Whether XML is read into a structured message (unmarshal) or a structured message is written as XML (marshal).").
			Default(operationUnmarshal)).
		Field(service.NewStringField("root_element").
			Description("Global element structured messages are written as, by local name or as {namespace}local. Messages with an @type entry naming a Go type bound to an element need none.").
			Default("")).
		Field(service.NewBoolField("validate").
			Description("Evaluate the rules of the binding file on every message.").
			Default(false)).
		Field(service.NewBoolField("fail_fast").
			Description("Stop at the first invalid value instead of collecting every error of a document.").
			Default(false)).
		Version("0.1.0")
}

// newBindingProcessorFromConfig creates a new BindingProcessor from a parsed config.
func newBindingProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*BindingProcessor, error) {
	bindingPath, err := conf.FieldString("binding_path")
	if err != nil {
		return nil, err
	}
	operation, err := conf.FieldString("operation")
	if err != nil {
		return nil, err
	}
	rootElement, err := conf.FieldString("root_element")
	if err != nil {
		return nil, err
	}
	validate, err := conf.FieldBool("validate")
	if err != nil {
		return nil, err
	}
	failFast, err := conf.FieldBool("fail_fast")
	if err != nil {
		return nil, err
	}

	config := BindingConfig{
		BindingPath: bindingPath,
		Operation:   operation,
		RootElement: rootElement,
		Validate:    validate,
		FailFast:    failFast,
	}

	if _, err := os.Stat(bindingPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("binding file not found at path: %s", bindingPath)
	}

	binder := xbind.NewBinder(xbind.WithCaching(0))
	if err := binder.ValidateBindingFile(bindingPath); err != nil {
		return nil, fmt.Errorf("invalid binding file: %w", err)
	}

	opts := []xbind.Option{xbind.WithValidation(validate)}
	if rootElement != "" {
		opts = append(opts, xbind.WithRootElement(rootElement))
	}
	if failFast {
		opts = append(opts, xbind.WithErrorMode(marshal.FailFast))
	}

	metrics := mgr.Metrics()
	return &BindingProcessor{
		config:     config,
		binder:     binder,
		opts:       opts,
		logger:     mgr.Logger(),
		mRead:      metrics.NewCounter("xml_binding_unmarshalled_messages"),
		mWritten:   metrics.NewCounter("xml_binding_marshalled_messages"),
		mErrors:    metrics.NewCounter("xml_binding_processing_errors"),
		mRecovered: metrics.NewCounter("xml_binding_recoverable_errors"),
		mLatency:   metrics.NewTimer("xml_binding_latency_ns"),
	}, nil
}

// Process applies unmarshalling or marshalling to a message.
func (p *BindingProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	start := time.Now()
	defer func() { p.mLatency.Timing(time.Since(start).Nanoseconds()) }()

	if p.config.Operation == operationMarshal {
		return p.marshal(ctx, msg)
	}
	return p.unmarshal(ctx, msg)
}

// unmarshal reads an XML document into a structured message.
func (p *BindingProcessor) unmarshal(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	data, err := msg.AsBytes()
	if err != nil {
		return p.fail(msg, fmt.Errorf("failed to get document from message: %w", err))
	}
	if len(data) == 0 {
		p.logger.Warn("Empty document provided")
		return p.fail(msg, errors.New("empty document provided"))
	}

	result, err := p.binder.Unmarshal(ctx, data, p.config.BindingPath, p.opts...)
	if result == nil && err != nil {
		return p.fail(msg, fmt.Errorf("failed to unmarshal document of size %d bytes: %w", len(data), err))
	}

	newMsg := msg.Copy()
	newMsg.SetStructured(xbind.ToStructured(result))
	if err != nil {
		var recorded marshal.ErrorList
		if errors.As(err, &recorded) {
			p.mRecovered.Incr(int64(len(recorded)))
		}
		p.logger.Debugf("Document read with errors: %v", err)
		p.mErrors.Incr(1)
		newMsg.SetError(err)
		return service.MessageBatch{newMsg}, nil
	}

	p.logger.Tracef("Unmarshalled %d bytes", len(data))
	p.mRead.Incr(1)
	return service.MessageBatch{newMsg}, nil
}

// marshal writes a structured message as an XML document.
func (p *BindingProcessor) marshal(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	structured, err := msg.AsStructured()
	if err != nil {
		return p.fail(msg, fmt.Errorf("failed to get structured data from message: %w", err))
	}
	obj, ok := structured.(map[string]any)
	if !ok {
		return p.fail(msg, fmt.Errorf("expected an object, got %T", structured))
	}

	doc, err := p.binder.Marshal(ctx, obj, p.config.BindingPath, p.opts...)
	if err != nil {
		return p.fail(msg, fmt.Errorf("failed to marshal message: %w", err))
	}

	p.logger.Tracef("Marshalled message to %d bytes", len(doc))
	p.mWritten.Incr(1)

	newMsg := msg.Copy()
	newMsg.SetBytes(doc)
	return service.MessageBatch{newMsg}, nil
}

func (p *BindingProcessor) fail(msg *service.Message, err error) (service.MessageBatch, error) {
	p.logger.Errorf("%v", err)
	p.mErrors.Incr(1)
	msg.SetError(err)
	return service.MessageBatch{msg}, nil
}

// Close the processor resources
func (p *BindingProcessor) Close(ctx context.Context) error {
	p.logger.Debug("Closing xml_binding processor and clearing binding cache")
	p.binder.ClearCache()
	return nil
}
