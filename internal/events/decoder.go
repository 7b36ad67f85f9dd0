package events

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"go.uber.org/zap"

	"tickpool/internal/model"
	"tickpool/internal/tick"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders.
type DecodeContext struct {
	Context context.Context
	Logger  *zap.Logger
}

// PoolDecoder decodes lending pool events.
type PoolDecoder struct {
	poolABI     abi.ABI
	topicToName map[string]string
}

// NewPoolDecoder builds a pool event decoder.
func NewPoolDecoder() (*PoolDecoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, err
	}

	topicToName := make(map[string]string, len(eventNames))
	for _, name := range eventNames {
		topicToName[strings.ToLower(poolABI.Events[name].ID.Hex())] = name
	}

	return &PoolDecoder{
		poolABI:     poolABI,
		topicToName: topicToName,
	}, nil
}

var eventNames = []string{
	"Deposited",
	"Redeemed",
	"Withdrawn",
	"LoanOriginated",
	"LoanRepaid",
	"LoanLiquidated",
}

// CanDecode checks if the topic0 is supported.
func (d *PoolDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PoolDecoder) Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}

	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pool address: %s", log.Address)
	}

	var (
		decoded interface{}
		err     error
	)
	switch name {
	case "Deposited":
		decoded, err = d.decodeDeposited(log)
	case "Redeemed":
		decoded, err = d.decodeRedeemed(log)
	case "Withdrawn":
		decoded, err = d.decodeWithdrawn(log)
	case "LoanOriginated":
		decoded, err = d.decodeLoanOriginated(log)
	case "LoanRepaid":
		decoded, err = d.decodeLoanRepaid(log)
	case "LoanLiquidated":
		decoded, err = d.decodeLoanLiquidated(log)
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}
	if err != nil {
		return nil, err
	}
	return buildTypedEvent(log, name, decoded), nil
}

func buildTypedEvent(log model.LogRecord, name string, decoded interface{}) *model.TypedEvent {
	raw := &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data}
	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		LogIndex:    log.LogIndex,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         raw,
	}
}

func (d *PoolDecoder) decodeDeposited(log model.LogRecord) (model.DepositedEventData, error) {
	event := d.poolABI.Events["Deposited"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.DepositedEventData{}, err
	}

	var indexed struct {
		Account common.Address
		Tick    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.DepositedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.DepositedEventData{}, err
	}
	if len(values) != 2 {
		return model.DepositedEventData{}, fmt.Errorf("unexpected deposited values: %d", len(values))
	}

	amount, err := asBigInt(values[0])
	if err != nil {
		return model.DepositedEventData{}, err
	}
	shares, err := asBigInt(values[1])
	if err != nil {
		return model.DepositedEventData{}, err
	}
	tickHex, err := tickHexFromBig(indexed.Tick)
	if err != nil {
		return model.DepositedEventData{}, err
	}

	return model.DepositedEventData{
		Account: indexed.Account.Hex(),
		Tick:    tickHex,
		Amount:  amount.String(),
		Shares:  shares.String(),
	}, nil
}

func (d *PoolDecoder) decodeRedeemed(log model.LogRecord) (model.RedeemedEventData, error) {
	event := d.poolABI.Events["Redeemed"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.RedeemedEventData{}, err
	}

	var indexed struct {
		Account common.Address
		Tick    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.RedeemedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.RedeemedEventData{}, err
	}
	if len(values) != 1 {
		return model.RedeemedEventData{}, fmt.Errorf("unexpected redeemed values: %d", len(values))
	}

	shares, err := asBigInt(values[0])
	if err != nil {
		return model.RedeemedEventData{}, err
	}
	tickHex, err := tickHexFromBig(indexed.Tick)
	if err != nil {
		return model.RedeemedEventData{}, err
	}

	return model.RedeemedEventData{
		Account: indexed.Account.Hex(),
		Tick:    tickHex,
		Shares:  shares.String(),
	}, nil
}

func (d *PoolDecoder) decodeWithdrawn(log model.LogRecord) (model.WithdrawnEventData, error) {
	event := d.poolABI.Events["Withdrawn"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.WithdrawnEventData{}, err
	}

	var indexed struct {
		Account common.Address
		Tick    *big.Int
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.WithdrawnEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.WithdrawnEventData{}, err
	}
	if len(values) != 2 {
		return model.WithdrawnEventData{}, fmt.Errorf("unexpected withdrawn values: %d", len(values))
	}

	shares, err := asBigInt(values[0])
	if err != nil {
		return model.WithdrawnEventData{}, err
	}
	amount, err := asBigInt(values[1])
	if err != nil {
		return model.WithdrawnEventData{}, err
	}
	tickHex, err := tickHexFromBig(indexed.Tick)
	if err != nil {
		return model.WithdrawnEventData{}, err
	}

	return model.WithdrawnEventData{
		Account: indexed.Account.Hex(),
		Tick:    tickHex,
		Shares:  shares.String(),
		Amount:  amount.String(),
	}, nil
}

func (d *PoolDecoder) decodeLoanOriginated(log model.LogRecord) (model.LoanOriginatedEventData, error) {
	event := d.poolABI.Events["LoanOriginated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}

	var indexed struct {
		LoanId   common.Hash
		Borrower common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.LoanOriginatedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}
	if len(values) != 4 {
		return model.LoanOriginatedEventData{}, fmt.Errorf("unexpected origination values: %d", len(values))
	}

	principal, err := asBigInt(values[0])
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}
	durationClass, err := asUint8(values[1])
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}
	multiplier, err := asBigInt(values[2])
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}
	rawTicks, err := asBigIntSlice(values[3])
	if err != nil {
		return model.LoanOriginatedEventData{}, err
	}

	ticks := make([]string, 0, len(rawTicks))
	for _, raw := range rawTicks {
		tickHex, err := tickHexFromBig(raw)
		if err != nil {
			return model.LoanOriginatedEventData{}, err
		}
		ticks = append(ticks, tickHex)
	}

	return model.LoanOriginatedEventData{
		LoanID:        indexed.LoanId.Hex(),
		Borrower:      indexed.Borrower.Hex(),
		Principal:     principal.String(),
		DurationClass: durationClass,
		Multiplier:    multiplier.String(),
		Ticks:         ticks,
	}, nil
}

func (d *PoolDecoder) decodeLoanRepaid(log model.LogRecord) (model.LoanRepaidEventData, error) {
	event := d.poolABI.Events["LoanRepaid"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.LoanRepaidEventData{}, err
	}

	var indexed struct {
		LoanId common.Hash
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.LoanRepaidEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LoanRepaidEventData{}, err
	}
	if len(values) != 1 {
		return model.LoanRepaidEventData{}, fmt.Errorf("unexpected repayment values: %d", len(values))
	}

	elapsed, err := asBigInt(values[0])
	if err != nil {
		return model.LoanRepaidEventData{}, err
	}

	return model.LoanRepaidEventData{
		LoanID:     indexed.LoanId.Hex(),
		ElapsedBps: elapsed.String(),
	}, nil
}

func (d *PoolDecoder) decodeLoanLiquidated(log model.LogRecord) (model.LoanLiquidatedEventData, error) {
	event := d.poolABI.Events["LoanLiquidated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.LoanLiquidatedEventData{}, err
	}

	var indexed struct {
		LoanId common.Hash
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.LoanLiquidatedEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.LoanLiquidatedEventData{}, err
	}
	if len(values) != 1 {
		return model.LoanLiquidatedEventData{}, fmt.Errorf("unexpected liquidation values: %d", len(values))
	}

	proceeds, err := asBigInt(values[0])
	if err != nil {
		return model.LoanLiquidatedEventData{}, err
	}

	return model.LoanLiquidatedEventData{
		LoanID:   indexed.LoanId.Hex(),
		Proceeds: proceeds.String(),
	}, nil
}

func tickHexFromBig(value *big.Int) (string, error) {
	if value == nil {
		return "", fmt.Errorf("missing tick value")
	}
	tk, err := tick.FromBig(value)
	if err != nil {
		return "", fmt.Errorf("tick out of range: %s", value)
	}
	return tk.Hex(), nil
}
