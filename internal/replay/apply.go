package replay

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tickpool/internal/model"
	"tickpool/internal/tick"
)

func (r *Replayer) apply(record model.TypedEventRecord) error {
	switch record.EventName {
	case "Deposited":
		var payload model.DepositedEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		tk, err := tick.FromHex(payload.Tick)
		if err != nil {
			return err
		}
		amount, err := parseBig(payload.Amount)
		if err != nil {
			return err
		}
		minted, err := r.pool.Deposit(common.HexToAddress(payload.Account), tk, amount)
		if err != nil {
			return err
		}
		if payload.Shares != "" && minted.String() != payload.Shares {
			r.logger.Warn("share drift",
				zap.String("event", record.EventName),
				zap.Uint64("block_number", record.BlockNumber),
				zap.String("chain", payload.Shares),
				zap.String("replica", minted.String()),
			)
		}
		return nil

	case "Redeemed":
		var payload model.RedeemedEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		tk, err := tick.FromHex(payload.Tick)
		if err != nil {
			return err
		}
		shares, err := parseBig(payload.Shares)
		if err != nil {
			return err
		}
		return r.pool.Redeem(common.HexToAddress(payload.Account), tk, shares)

	case "Withdrawn":
		var payload model.WithdrawnEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		tk, err := tick.FromHex(payload.Tick)
		if err != nil {
			return err
		}
		_, amount, err := r.pool.Withdraw(common.HexToAddress(payload.Account), tk)
		if err != nil {
			return err
		}
		if payload.Amount != "" && amount.String() != payload.Amount {
			r.logger.Warn("withdrawal drift",
				zap.String("event", record.EventName),
				zap.Uint64("block_number", record.BlockNumber),
				zap.String("chain", payload.Amount),
				zap.String("replica", amount.String()),
			)
		}
		return nil

	case "LoanOriginated":
		var payload model.LoanOriginatedEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		principal, err := parseBig(payload.Principal)
		if err != nil {
			return err
		}
		multiplier, err := parseUint64(payload.Multiplier)
		if err != nil {
			return err
		}
		ticks := make([]tick.Tick, 0, len(payload.Ticks))
		for _, raw := range payload.Ticks {
			tk, err := tick.FromHex(raw)
			if err != nil {
				return err
			}
			ticks = append(ticks, tk)
		}
		_, err = r.pool.Borrow(
			common.HexToHash(payload.LoanID),
			common.HexToAddress(payload.Borrower),
			principal,
			payload.DurationClass,
			ticks,
			multiplier,
		)
		return err

	case "LoanRepaid":
		var payload model.LoanRepaidEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		elapsedBps, err := parseUint64(payload.ElapsedBps)
		if err != nil {
			return err
		}
		return r.pool.Repay(common.HexToHash(payload.LoanID), elapsedBps)

	case "LoanLiquidated":
		var payload model.LoanLiquidatedEventData
		if err := json.Unmarshal(record.Decoded, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		proceeds, err := parseBig(payload.Proceeds)
		if err != nil {
			return err
		}
		return r.pool.Liquidate(common.HexToHash(payload.LoanID), proceeds)

	default:
		return fmt.Errorf("unsupported event name: %s", record.EventName)
	}
}

func parseBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseUint64(s string) (uint64, error) {
	v, err := parseBig(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("value out of range: %s", s)
	}
	return v.Uint64(), nil
}
