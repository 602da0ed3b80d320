package api

// Request schemas for mutating routes. Hex-encoded fields accept an
// optional 0x prefix; amounts are integers bounded by the scheme's
// maximum total supply.

const hexPattern = `^(0x)?[0-9a-fA-F]+$`

const createUserSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["username"],
  "properties": {
    "username": {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`

const createAssetSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["ticker"],
  "properties": {
    "ticker": {"type": "string", "pattern": "^[A-Z0-9]{1,12}$"}
  }
}`

const amountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": "integer", "minimum": 1, "maximum": 4294967295}
  }
}`

const sendSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["receiver_public_key", "amount"],
  "properties": {
    "receiver_public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "auditor_public_keys": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}},
    "amount": {"type": "integer", "minimum": 1, "maximum": 4294967295},
    "prior_enc_balance": {"type": "string", "pattern": "` + hexPattern + `"}
  }
}`

const burnSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "auditor_public_keys": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}},
    "amount": {"type": "integer", "minimum": 1, "maximum": 4294967295},
    "prior_enc_balance": {"type": "string", "pattern": "` + hexPattern + `"}
  }
}`

const receiverVerifySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["proof", "amount"],
  "properties": {
    "proof": {"type": "string", "pattern": "` + hexPattern + `"},
    "amount": {"type": "integer", "minimum": 0, "maximum": 4294967295}
  }
}`

const auditorVerifySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["proof", "auditor_index"],
  "properties": {
    "proof": {"type": "string", "pattern": "` + hexPattern + `"},
    "auditor_index": {"type": "integer", "minimum": 0},
    "amount": {"type": "integer", "minimum": 0, "maximum": 4294967295}
  }
}`

const verifySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["proof"],
  "properties": {
    "proof": {"type": "string", "pattern": "` + hexPattern + `"},
    "sender_public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "sender_enc_balance": {"type": "string", "pattern": "` + hexPattern + `"},
    "receiver_public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "auditor_public_keys": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}}
  }
}`

const decryptSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["ciphertext"],
  "properties": {
    "ciphertext": {"type": "string", "pattern": "` + hexPattern + `"}
  }
}`

const updateBalanceSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["enc_balance"],
  "properties": {
    "enc_balance": {"type": "string", "pattern": "` + hexPattern + `"}
  }
}`

const createSignerSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 64}
  }
}`

const signerOnlySchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer"],
  "properties": {
    "signer": {"type": "string", "minLength": 1}
  }
}`

const txInitAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "public_key"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "public_key": {"type": "string", "pattern": "` + hexPattern + `"}
  }
}`

const txCreateAssetSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "ticker"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "ticker": {"type": "string", "pattern": "^[A-Z0-9]{1,12}$"},
    "auditor_public_keys": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}},
    "mediator_public_keys": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}}
  }
}`

const txMintSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "public_key", "amount"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "amount": {"type": "integer", "minimum": 1, "maximum": 4294967295}
  }
}`

const txAllowVenuesSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "venues"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "venues": {"type": "array", "minItems": 1, "items": {"type": "integer", "minimum": 0}}
  }
}`

const txCreateSettlementSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "venue_id", "legs"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "venue_id": {"type": "integer", "minimum": 0},
    "memo": {"type": "string", "maxLength": 256},
    "legs": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["sender", "receiver", "asset_ids"],
        "properties": {
          "sender": {"type": "string", "pattern": "` + hexPattern + `"},
          "receiver": {"type": "string", "pattern": "` + hexPattern + `"},
          "mediators": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}},
          "auditors": {"type": "array", "items": {"type": "string", "pattern": "` + hexPattern + `"}},
          "asset_ids": {"type": "array", "minItems": 1, "items": {"type": "string"}}
        }
      }
    }
  }
}`

const affirmLegFragment = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["transaction_id", "leg_id"],
  "properties": {
    "transaction_id": {"type": "integer", "minimum": 0},
    "leg_id": {"type": "integer", "minimum": 0},
    "party": {"type": "string", "enum": ["SENDER", "RECEIVER", "MEDIATOR"]},
    "amounts": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["asset_id", "amount"],
        "properties": {
          "asset_id": {"type": "string", "minLength": 1},
          "amount": {"type": "integer", "minimum": 0, "maximum": 4294967295}
        }
      }
    }
  }
}`

const txAffirmSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "public_key", "leg"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "leg": ` + affirmLegFragment + `
  }
}`

const txBatchAffirmSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["signer", "public_key", "legs"],
  "properties": {
    "signer": {"type": "string", "minLength": 1},
    "public_key": {"type": "string", "pattern": "` + hexPattern + `"},
    "legs": {"type": "array", "minItems": 1, "items": ` + affirmLegFragment + `}
  }
}`
