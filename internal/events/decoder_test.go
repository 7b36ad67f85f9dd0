package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"tickpool/internal/model"
	"tickpool/internal/tick"
)

func testTick(t *testing.T, limit int64, duration, rate uint8) tick.Tick {
	t.Helper()
	wad := new(big.Int).Mul(big.NewInt(limit), big.NewInt(1e18))
	tk, err := tick.Encode(wad, duration, rate)
	if err != nil {
		t.Fatalf("encode tick: %v", err)
	}
	return tk
}

func buildLogRecord(pool common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     1,
		BlockNumber: 19_500_000,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     pool.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1_700_000_000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func topicFromTick(tk tick.Tick) common.Hash {
	return common.BigToHash(tk.Big())
}

func TestPoolDecoderDeposited(t *testing.T) {
	poolABI, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tk := testTick(t, 100, 1, 2)

	data, err := poolABI.Events["Deposited"].Inputs.NonIndexed().Pack(
		big.NewInt(1000),
		big.NewInt(950),
	)
	if err != nil {
		t.Fatalf("pack deposited: %v", err)
	}

	logRecord := buildLogRecord(pool, poolABI.Events["Deposited"].ID, data, []common.Hash{
		topicFromAddress(account),
		topicFromTick(tk),
	})

	if !decoder.CanDecode(logRecord.Topics[0]) {
		t.Fatalf("decoder should accept Deposited topic0")
	}
	event, err := decoder.Decode(logRecord, DecodeContext{})
	if err != nil {
		t.Fatalf("decode deposited: %v", err)
	}

	deposited, ok := event.Decoded.(model.DepositedEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if deposited.Account != account.Hex() {
		t.Fatalf("account mismatch: %s", deposited.Account)
	}
	if deposited.Amount != "1000" || deposited.Shares != "950" {
		t.Fatalf("amounts mismatch: %+v", deposited)
	}

	decodedTick, err := tick.FromHex(deposited.Tick)
	if err != nil {
		t.Fatalf("tick parse: %v", err)
	}
	if decodedTick.Cmp(tk) != 0 {
		t.Fatalf("tick mismatch: %s != %s", decodedTick, tk)
	}
	if event.EventName != "Deposited" {
		t.Fatalf("event name mismatch: %s", event.EventName)
	}
}

func TestPoolDecoderLoanOriginated(t *testing.T) {
	poolABI, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	borrower := common.HexToAddress("0x3333333333333333333333333333333333333333")
	loanID := common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001")
	tickA := testTick(t, 100, 0, 0)
	tickB := testTick(t, 200, 0, 1)

	data, err := poolABI.Events["LoanOriginated"].Inputs.NonIndexed().Pack(
		big.NewInt(150),
		uint8(2),
		big.NewInt(1),
		[]*big.Int{tickA.Big(), tickB.Big()},
	)
	if err != nil {
		t.Fatalf("pack origination: %v", err)
	}

	logRecord := buildLogRecord(pool, poolABI.Events["LoanOriginated"].ID, data, []common.Hash{
		loanID,
		topicFromAddress(borrower),
	})

	event, err := decoder.Decode(logRecord, DecodeContext{})
	if err != nil {
		t.Fatalf("decode origination: %v", err)
	}

	originated, ok := event.Decoded.(model.LoanOriginatedEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if originated.LoanID != loanID.Hex() || originated.Borrower != borrower.Hex() {
		t.Fatalf("identity mismatch: %+v", originated)
	}
	if originated.Principal != "150" || originated.DurationClass != 2 || originated.Multiplier != "1" {
		t.Fatalf("terms mismatch: %+v", originated)
	}
	if len(originated.Ticks) != 2 {
		t.Fatalf("expected 2 ticks, got %d", len(originated.Ticks))
	}
	for i, want := range []tick.Tick{tickA, tickB} {
		got, err := tick.FromHex(originated.Ticks[i])
		if err != nil {
			t.Fatalf("tick %d parse: %v", i, err)
		}
		if got.Cmp(want) != 0 {
			t.Fatalf("tick %d mismatch: %s != %s", i, got, want)
		}
	}
}

func TestPoolDecoderLoanSettlement(t *testing.T) {
	poolABI, err := PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPoolDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	pool := common.HexToAddress("0x1111111111111111111111111111111111111111")
	loanID := common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000002")

	repaidData, err := poolABI.Events["LoanRepaid"].Inputs.NonIndexed().Pack(big.NewInt(10_000))
	if err != nil {
		t.Fatalf("pack repaid: %v", err)
	}
	repaidLog := buildLogRecord(pool, poolABI.Events["LoanRepaid"].ID, repaidData, []common.Hash{loanID})

	repaidEvent, err := decoder.Decode(repaidLog, DecodeContext{})
	if err != nil {
		t.Fatalf("decode repaid: %v", err)
	}
	repaid, ok := repaidEvent.Decoded.(model.LoanRepaidEventData)
	if !ok {
		t.Fatalf("repaid type mismatch")
	}
	if repaid.LoanID != loanID.Hex() || repaid.ElapsedBps != "10000" {
		t.Fatalf("repaid mismatch: %+v", repaid)
	}

	liquidatedData, err := poolABI.Events["LoanLiquidated"].Inputs.NonIndexed().Pack(big.NewInt(75))
	if err != nil {
		t.Fatalf("pack liquidated: %v", err)
	}
	liquidatedLog := buildLogRecord(pool, poolABI.Events["LoanLiquidated"].ID, liquidatedData, []common.Hash{loanID})

	liquidatedEvent, err := decoder.Decode(liquidatedLog, DecodeContext{})
	if err != nil {
		t.Fatalf("decode liquidated: %v", err)
	}
	liquidated, ok := liquidatedEvent.Decoded.(model.LoanLiquidatedEventData)
	if !ok {
		t.Fatalf("liquidated type mismatch")
	}
	if liquidated.Proceeds != "75" {
		t.Fatalf("proceeds mismatch: %+v", liquidated)
	}

	if decoder.CanDecode("0x0000000000000000000000000000000000000000000000000000000000000000") {
		t.Fatalf("decoder should reject unknown topic0")
	}
}
