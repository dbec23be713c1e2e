package sqlinline

const QInsertJob = `--sql insert_job
insert into jobs (
    id, pipeline_id, artifact_id, queue, status, attempts, max_attempts,
    claim_token, next_run_at, cancel_requested, reports, created_at, updated_at
)
values ($1, $2, $3, $4, $5, 0, $6, '', $7, false, '[]'::jsonb, $8, $8);
`

const QGetJob = `--sql get_job
select id, pipeline_id, artifact_id, queue, status, attempts, max_attempts,
       claim_token, lease_expires_at, next_run_at, cancel_requested,
       error_detail, output_artifact_id, reports, created_at, updated_at
from jobs
where id = $1;
`

const QClaimJob = `--sql claim_job
with next_job as (
    select id
    from jobs
    where queue = $1
      and (
          (status = 'pending' and next_run_at <= now())
          or (status = 'processing' and lease_expires_at < now())
      )
    order by next_run_at asc
    for update skip locked
    limit 1
),
claimed as (
    update jobs
    set status = 'processing',
        claim_token = $2,
        lease_expires_at = $3,
        attempts = attempts + 1,
        -- The new attempt starts clean; the prior attempt's error lives on
        -- in the report log.
        error_detail = '',
        updated_at = now()
    where id in (select id from next_job)
    returning id, pipeline_id, artifact_id, queue, status, attempts,
              max_attempts, claim_token, lease_expires_at, next_run_at,
              cancel_requested, error_detail, output_artifact_id, reports,
              created_at, updated_at
)
select * from claimed;
`

const QRenewLease = `--sql renew_lease
update jobs
set lease_expires_at = $3, updated_at = now()
where id = $1 and claim_token = $2 and status = 'processing';
`

const QCompleteJob = `--sql complete_job
update jobs
set status = 'completed',
    output_artifact_id = $3,
    reports = reports || $4::jsonb,
    claim_token = '',
    lease_expires_at = null,
    updated_at = now()
where id = $1 and claim_token = $2 and status = 'processing';
`

const QFailJob = `--sql fail_job
update jobs
set status = case when $5::timestamptz is null then 'failed' else 'pending' end,
    error_detail = $3,
    reports = coalesce(reports || $4::jsonb, reports),
    next_run_at = coalesce($5::timestamptz, next_run_at),
    claim_token = '',
    lease_expires_at = null,
    updated_at = now()
where id = $1 and claim_token = $2 and status = 'processing';
`

const QRequestCancel = `--sql request_cancel
update jobs
set cancel_requested = true, updated_at = now()
where id = $1 and status in ('pending', 'processing');
`
