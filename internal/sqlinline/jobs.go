package sqlinline

const QInsertGenerationJob = `--sql 5b1f9c3a-72e4-4a0d-9c1b-3f8a6d2e4b01
insert into generation_jobs(
  id,
  owner_id,
  kind,
  provider_key,
  units,
  reserved_base,
  reserved_bonus,
  status,
  created_at,
  updated_at
)
values ($1::uuid, $2::uuid, $3::text, $4::text, $5::int, $6::bigint, $7::bigint, $8::text, $9::timestamptz, $9::timestamptz);
`

const QSelectGenerationJob = `--sql 8c2d4e6f-19ab-4c3d-8e5f-7a9b1c3d5e02
select id, owner_id, kind, provider_key, units, reserved_base, reserved_bonus,
       coalesce(provider_handle, ''), status, coalesce(result_json, '{}'::jsonb),
       coalesce(failure_reason, ''), created_at, updated_at,
       coalesce(last_polled_at, 'epoch'::timestamptz), coalesce(completed_at, 'epoch'::timestamptz)
from generation_jobs
where id = $1::uuid;
`

const QSetProviderHandle = `--sql 1a3b5c7d-9e0f-4a2b-b4c6-d8e0f2a4c603
update generation_jobs
set provider_handle = $2::text, updated_at = now()
where id = $1::uuid;
`

const QTouchJob = `--sql 4d6e8f0a-2b4c-4d6e-8f0a-1b3c5d7e9f04
update generation_jobs
set last_polled_at = $2::timestamptz, updated_at = now()
where id = $1::uuid;
`

const QSettleJob = `--sql 7e9f1a3b-5c7d-4e9f-a1b3-c5d7e9f1a305
update generation_jobs
set status = $3::text,
    result_json = $4::jsonb,
    failure_reason = nullif($5::text, ''),
    completed_at = $6::timestamptz,
    updated_at = now()
where id = $1::uuid
  and status = $2::text;
`

const QSelectStaleJobs = `--sql 0a2b4c6d-8e0f-4a2b-9c4d-6e8f0a2b4c06
select id, owner_id, kind, provider_key, units, reserved_base, reserved_bonus,
       coalesce(provider_handle, ''), status, coalesce(result_json, '{}'::jsonb),
       coalesce(failure_reason, ''), created_at, updated_at,
       coalesce(last_polled_at, 'epoch'::timestamptz), coalesce(completed_at, 'epoch'::timestamptz)
from generation_jobs
where status = 'PROCESSING'
  and kind = $1::text
  and created_at < $2::timestamptz
order by created_at
limit 100;
`

const QSelectProcessingByOwner = `--sql 3c5d7e9f-1a3b-4c5d-ae9f-0a2b4c6d8e07
select id, owner_id, kind, provider_key, units, reserved_base, reserved_bonus,
       coalesce(provider_handle, ''), status, coalesce(result_json, '{}'::jsonb),
       coalesce(failure_reason, ''), created_at, updated_at,
       coalesce(last_polled_at, 'epoch'::timestamptz), coalesce(completed_at, 'epoch'::timestamptz)
from generation_jobs
where status = 'PROCESSING'
  and owner_id = $1::uuid
order by created_at;
`
