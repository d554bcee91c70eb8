// Package chain is the boundary to the market contract: read calls, log
// decoding, and write calldata. The contract's settlement logic is never
// reimplemented here; this package only speaks its ABI.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// marketABI is the PredictionMarket contract interface consumed by the
// mirror: the five events it emits, the read calls the reconciler needs, and
// the write methods delegated to an external transaction submitter.
const marketABI = `[
  {
    "anonymous": false,
    "inputs": [
      { "indexed": true, "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "indexed": true, "internalType": "address", "name": "creator", "type": "address" },
      { "indexed": false, "internalType": "string", "name": "question", "type": "string" },
      { "indexed": false, "internalType": "uint256", "name": "endTime", "type": "uint256" },
      { "indexed": false, "internalType": "uint256", "name": "initialYesPred", "type": "uint256" },
      { "indexed": false, "internalType": "uint256", "name": "initialNoPred", "type": "uint256" }
    ],
    "name": "MarketCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      { "indexed": true, "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "indexed": true, "internalType": "address", "name": "user", "type": "address" },
      { "indexed": false, "internalType": "bool", "name": "isYes", "type": "bool" },
      { "indexed": false, "internalType": "uint256", "name": "predIn", "type": "uint256" },
      { "indexed": false, "internalType": "uint256", "name": "sharesOut", "type": "uint256" }
    ],
    "name": "SharesBought",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      { "indexed": true, "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "indexed": true, "internalType": "address", "name": "user", "type": "address" },
      { "indexed": false, "internalType": "bool", "name": "isYes", "type": "bool" },
      { "indexed": false, "internalType": "uint256", "name": "sharesIn", "type": "uint256" },
      { "indexed": false, "internalType": "uint256", "name": "predOut", "type": "uint256" }
    ],
    "name": "SharesSold",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      { "indexed": true, "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "indexed": true, "internalType": "address", "name": "user", "type": "address" },
      { "indexed": false, "internalType": "string", "name": "content", "type": "string" }
    ],
    "name": "Comment",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      { "indexed": true, "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "indexed": true, "internalType": "address", "name": "user", "type": "address" },
      { "indexed": false, "internalType": "string", "name": "content", "type": "string" }
    ],
    "name": "Danmaku",
    "type": "event"
  },
  {
    "inputs": [],
    "name": "marketCount",
    "outputs": [ { "internalType": "uint256", "name": "", "type": "uint256" } ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [ { "internalType": "uint256", "name": "marketId", "type": "uint256" } ],
    "name": "getMarketBasics",
    "outputs": [
      { "internalType": "address", "name": "creator", "type": "address" },
      { "internalType": "string", "name": "question", "type": "string" },
      { "internalType": "uint256", "name": "endTime", "type": "uint256" },
      { "internalType": "uint8", "name": "status", "type": "uint8" },
      { "internalType": "bool", "name": "outcome", "type": "bool" }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [ { "internalType": "uint256", "name": "marketId", "type": "uint256" } ],
    "name": "getMarketPools",
    "outputs": [
      { "internalType": "uint256", "name": "yesPredReserve", "type": "uint256" },
      { "internalType": "uint256", "name": "yesShareReserve", "type": "uint256" },
      { "internalType": "uint256", "name": "noPredReserve", "type": "uint256" },
      { "internalType": "uint256", "name": "noShareReserve", "type": "uint256" },
      { "internalType": "uint256", "name": "totalYesShares", "type": "uint256" },
      { "internalType": "uint256", "name": "totalNoShares", "type": "uint256" },
      { "internalType": "uint256", "name": "winningPredPool", "type": "uint256" },
      { "internalType": "uint256", "name": "totalWinningShares", "type": "uint256" }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "address", "name": "account", "type": "address" }
    ],
    "name": "positions",
    "outputs": [
      { "internalType": "uint256", "name": "yesShares", "type": "uint256" },
      { "internalType": "uint256", "name": "noShares", "type": "uint256" },
      { "internalType": "bool", "name": "claimed", "type": "bool" },
      { "internalType": "bool", "name": "refunded", "type": "bool" }
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "uint256", "name": "predIn", "type": "uint256" },
      { "internalType": "uint256", "name": "minSharesOut", "type": "uint256" }
    ],
    "name": "buyYes", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "uint256", "name": "predIn", "type": "uint256" },
      { "internalType": "uint256", "name": "minSharesOut", "type": "uint256" }
    ],
    "name": "buyNo", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "uint256", "name": "sharesIn", "type": "uint256" },
      { "internalType": "uint256", "name": "minPredOut", "type": "uint256" }
    ],
    "name": "sellYes", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "uint256", "name": "sharesIn", "type": "uint256" },
      { "internalType": "uint256", "name": "minPredOut", "type": "uint256" }
    ],
    "name": "sellNo", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "string", "name": "content", "type": "string" }
    ],
    "name": "sendComment", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [
      { "internalType": "uint256", "name": "marketId", "type": "uint256" },
      { "internalType": "string", "name": "content", "type": "string" }
    ],
    "name": "sendDanmaku", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [ { "internalType": "uint256", "name": "marketId", "type": "uint256" } ],
    "name": "claimWinnings", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  },
  {
    "inputs": [ { "internalType": "uint256", "name": "marketId", "type": "uint256" } ],
    "name": "refund", "outputs": [], "stateMutability": "nonpayable", "type": "function"
  }
]`

// MarketABI is the parsed contract ABI, loaded once at package init so every
// consumer shares the same event IDs and argument layouts.
var MarketABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(marketABI))
	if err != nil {
		panic("chain: parse market abi: " + err.Error())
	}
	return parsed
}()

// Topic hashes for the five subscribed events.
var (
	MarketCreatedTopic = MarketABI.Events["MarketCreated"].ID
	SharesBoughtTopic  = MarketABI.Events["SharesBought"].ID
	SharesSoldTopic    = MarketABI.Events["SharesSold"].ID
	CommentTopic       = MarketABI.Events["Comment"].ID
	DanmakuTopic       = MarketABI.Events["Danmaku"].ID
)

// EventTopics returns the topic filter covering every subscribed event, in
// the single-position OR form FilterQuery expects.
func EventTopics() [][]common.Hash {
	return [][]common.Hash{{
		MarketCreatedTopic,
		SharesBoughtTopic,
		SharesSoldTopic,
		CommentTopic,
		DanmakuTopic,
	}}
}

// indexedArgs filters an event's inputs down to its indexed arguments, the
// form abi.ParseTopics requires.
func indexedArgs(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
